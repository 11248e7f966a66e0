//go:build rp2040

// Firmware entry for the Arduino Nano RP2040 Connect reference board.
// The clock module (DS3231 RTC + AT24C32 EEPROM) and the optional
// BME280 room sensor share the I2C bus; the NINA-W102 radio provides
// network time; USB CDC carries the framed provisioning console and
// UART0 carries debug text.
package main

import (
	"machine"
	"time"

	"goclock/core"
	"goclock/protocol"
)

// Board wiring
const (
	buttonPin = core.GPIOPin(machine.D2) // snooze/dismiss button, to ground
	buzzerPin = core.GPIOPin(machine.D3) // active buzzer, high = on
)

var (
	// Buffers for console communication
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	// Debug counters
	messagesReceived uint32
	messagesSent     uint32
	msgErrors        uint32

	// USB connection state tracking
	lastUSBActivity          uint64
	usbWasDisconnected       bool
	consecutiveWriteFailures uint32
)

func main() {
	// Disable the watchdog on boot to clear any previous state.
	// A reset-commanded restart otherwise keeps the 1ms timeout armed.
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()
	InitDebugUART()
	InitClock()

	machine.I2C0.Configure(machine.I2CConfig{Frequency: 400 * machine.KHz})

	// Register hardware drivers before the core context touches them
	core.SetRTCDriver(NewDS3231Driver(machine.I2C0))
	core.SetKVDriver(NewEEPROMStore(machine.I2C0))
	core.SetGPIODriver(NewRPGPIODriver())
	core.SetGPIOInterruptDriver(NewRPEdgeDriver())
	if sensor, serr := NewBME280Driver(machine.I2C0); serr == nil {
		core.SetSensorDriver(sensor)
	} else {
		core.DebugPrintln("[BOOT] no room sensor: " + serr.Error())
	}

	ctx := core.NewCoreContext(core.CoreConfig{
		ButtonPin: buttonPin,
		BuzzerPin: buzzerPin,
		Display:   NewLEDDisplay(),
		Query:     NinaTimeQuery{},
		Sleep: func(ms uint32) {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		},
	})

	// Platform constants go into the dictionary before it is built.
	// CLOCK_FREQ is the rate of the uptime values in console replies
	dict := ctx.Console.Dictionary()
	dict.AddConstant("MCU", "nano-rp2040")
	dict.AddConstant("CLOCK_FREQ", uint32(1000))
	dict.BuildDictionary()

	// Wire the framed console to USB
	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()
	transport = protocol.NewTransport(outputBuffer, ctx.Console.HandleFrame)
	transport.SetResetCallback(func() {
		// Clear buffers on host reset
		inputBuffer.Reset()
		outputBuffer.Reset()
	})
	// Flush ACKs immediately - the host waits for the ACK before
	// reading the response frames
	transport.SetFlushCallback(func() {
		writeUSB()
	})
	ctx.Console.AttachTransport(transport)

	// A commanded reset goes through the watchdog; more reliable than
	// SYSRESETREQ on RP2040 and re-enumerates USB cleanly
	ctx.Console.SetResetHandler(func() {
		err = machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1})
		if err != nil {
			return
		}
		err = machine.Watchdog.Start()
		if err != nil {
			return
		}
		for {
			time.Sleep(1 * time.Millisecond)
		}
	})

	// The radio wants provisioned credentials before the boot sync can
	// reach a time server. Boot re-runs Load; that is harmless.
	if perr := ctx.PA.Load(); perr != nil {
		core.DebugPrintln("[BOOT] settings load failed: " + perr.Error())
	}
	connectNetwork(ctx.PA)

	ctx.Boot()

	// Start USB reader goroutine
	go usbReaderLoop()

	// Main loop. Console traffic is pumped every pass; the clock core
	// steps once per LoopIntervalMillis.
	lastStep := core.Millis()
	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgErrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			// Update system time from hardware
			UpdateSystemTime()

			// Process incoming console frames
			if inputBuffer.Available() > 0 {
				data := inputBuffer.Data()
				originalLen := len(data)
				inputBuf := protocol.NewSliceInputBuffer(data)

				transport.Receive(inputBuf)
				messagesReceived++

				// Remove consumed bytes from the FIFO
				if consumed := originalLen - inputBuf.Available(); consumed > 0 {
					inputBuffer.Pop(consumed)
				}
			}

			if core.MillisSince(lastStep) >= core.LoopIntervalMillis {
				lastStep = core.Millis()
				ctx.Step()
			}

			// Write outgoing USB data
			if len(outputBuffer.Result()) > 0 {
				writeUSB()
				messagesSent++
			}

			// Check for pending reset after all messages sent
			// This ensures the result ACK has been transmitted first
			ctx.Console.CheckPendingReset()
		}()

		// Yield to other goroutines
		time.Sleep(5 * time.Millisecond)
	}
}

// usbReaderLoop runs in a goroutine to continuously read USB data
func usbReaderLoop() {
	// Recover from panics to prevent a firmware crash
	defer func() {
		if r := recover(); r != nil {
			msgErrors++
			// Restart the reader loop
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	for {
		if USBAvailable() > 0 {
			data, err := USBRead()
			if err != nil {
				msgErrors++
				time.Sleep(1 * time.Millisecond)
				continue
			}

			// If we were disconnected and now receiving data, reset
			// the framing state for the fresh connection
			if usbWasDisconnected {
				usbWasDisconnected = false
				inputBuffer.Reset()
				outputBuffer.Reset()
				transport.Reset()
				messagesReceived = 0
				messagesSent = 0
				consecutiveWriteFailures = 0
			}

			lastUSBActivity = core.GetUptime()

			written := inputBuffer.Write([]byte{data})
			if written == 0 {
				// Buffer full - error condition
				msgErrors++
				time.Sleep(10 * time.Millisecond)
			}
		}
		// Yield to avoid a busy loop
		time.Sleep(100 * time.Microsecond)
	}
}

// writeUSB drains the output buffer to USB, handling partial writes
// and disconnects
func writeUSB() {
	result := outputBuffer.Result()
	if len(result) == 0 {
		return
	}

	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			// Write stalled - likely disconnect
			consecutiveWriteFailures++
			// After several failures, mark as disconnected and drop
			// stale data rather than keep retrying it
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}

	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}
