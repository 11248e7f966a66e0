//go:build linux

// Clock daemon for single-board computers. The DS3231 and an optional
// BME280 sit on the I2C bus, button and buzzer on header GPIOs,
// settings in a plain file, network time over the host's own stack.
// With -console it serves the framed provisioning console on a serial
// device; a pty pair bridges that to clockctl on the same machine:
//
//	socat -d pty,raw,link=/tmp/clock-dev pty,raw,link=/tmp/clock-ctl &
//	goclock-linux -console /tmp/clock-dev &
//	clockctl -device /tmp/clock-ctl status
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"goclock/core"
	"goclock/host/serial"
	"goclock/protocol"
	"goclock/sntp"
)

var processStart = time.Now()

func updateMillis() {
	core.SetMillis(uint32(time.Since(processStart).Milliseconds()))
}

// HostTimeQuery runs one SNTP round-trip over the host network stack
type HostTimeQuery struct{}

func (HostTimeQuery) Query(server string, timeoutMillis uint32) (core.TimeSample, error) {
	res, err := sntp.Query(server, time.Duration(timeoutMillis)*time.Millisecond)
	if err != nil {
		return core.TimeSample{}, err
	}
	return core.TimeSample{
		Instant:        res.Time,
		RTTMillis:      uint32(res.RTT / time.Millisecond),
		ReceivedMillis: core.Millis(),
	}, nil
}

func main() {
	kvPath := flag.String("kv", "/var/lib/goclock/clock.kv", "settings file path")
	i2cName := flag.String("i2c", "1", "I2C bus name or number")
	buttonPin := flag.Uint("button", 17, "button GPIO number (input, pull-up, switch to ground)")
	buzzerPin := flag.Uint("buzzer", 27, "buzzer GPIO number (output, active high)")
	bmeAddr := flag.Uint("bme280", 0x76, "BME280 I2C address, 0 when not fitted")
	consoleDev := flag.String("console", "", "serial device to serve the provisioning console on")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	log.SetPrefix("goclock: ")

	if _, err := host.Init(); err != nil {
		log.Fatalf("periph init: %v", err)
	}

	bus, err := i2creg.Open(*i2cName)
	if err != nil {
		log.Fatalf("open i2c bus %q: %v", *i2cName, err)
	}
	defer bus.Close()

	store, err := NewFileStore(*kvPath)
	if err != nil {
		log.Fatalf("open settings %s: %v", *kvPath, err)
	}

	core.SetRTCDriver(NewDS3231(bus))
	core.SetKVDriver(store)
	core.SetGPIODriver(NewPeriphGPIODriver())
	if *bmeAddr != 0 {
		if sensor, serr := NewBME280Sensor(bus, uint16(*bmeAddr)); serr == nil {
			core.SetSensorDriver(sensor)
			defer sensor.Close()
		} else {
			log.Printf("no room sensor: %v", serr)
		}
	}

	core.SetDebugWriter(func(msg string) { log.Print(msg) })
	core.SetDebugEnabled(true)
	core.SetUptimeSource(func() uint64 {
		return uint64(time.Since(processStart).Milliseconds())
	})
	updateMillis()

	ctx := core.NewCoreContext(core.CoreConfig{
		ButtonPin: core.GPIOPin(*buttonPin),
		BuzzerPin: core.GPIOPin(*buzzerPin),
		Display:   LogDisplay{},
		Query:     HostTimeQuery{},
		Sleep: func(ms uint32) {
			time.Sleep(time.Duration(ms) * time.Millisecond)
			updateMillis()
		},
	})

	dict := ctx.Console.Dictionary()
	dict.AddConstant("MCU", "linux")
	dict.AddConstant("CLOCK_FREQ", uint32(1000))
	dict.BuildDictionary()

	// Console plumbing. The port reader is the only other goroutine
	// touching console state, and it hands bytes over a channel so the
	// FIFO and transport stay single-threaded.
	inputBuffer := protocol.NewFifoBuffer(256)
	outputBuffer := protocol.NewScratchOutput()
	transport := protocol.NewTransport(outputBuffer, ctx.Console.HandleFrame)
	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
	})
	ctx.Console.AttachTransport(transport)

	var consolePort serial.Port
	consoleRx := make(chan []byte, 32)

	flushConsole := func() {
		if consolePort == nil {
			return
		}
		result := outputBuffer.Result()
		if len(result) == 0 {
			return
		}
		if _, werr := consolePort.Write(result); werr != nil {
			log.Printf("console write: %v", werr)
		}
		outputBuffer.Reset()
	}
	transport.SetFlushCallback(flushConsole)

	if *consoleDev != "" {
		port, perr := serial.Open(serial.DefaultConfig(*consoleDev))
		if perr != nil {
			log.Fatalf("open console %s: %v", *consoleDev, perr)
		}
		consolePort = port
		go consoleReader(port, consoleRx)
		log.Printf("console on %s", *consoleDev)
	}

	// A commanded reset means "restart the daemon"; the supervisor
	// brings it back up
	ctx.Console.SetResetHandler(func() {
		log.Print("reset requested over console")
		if ferr := ctx.PA.Flush(); ferr != nil {
			log.Printf("settings flush: %v", ferr)
		}
		os.Exit(0)
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	ctx.Boot()

	pump := func() {
		if inputBuffer.Available() == 0 {
			return
		}
		data := inputBuffer.Data()
		originalLen := len(data)
		in := protocol.NewSliceInputBuffer(data)
		transport.Receive(in)
		if consumed := originalLen - in.Available(); consumed > 0 {
			inputBuffer.Pop(consumed)
		}
		flushConsole()
		ctx.Console.CheckPendingReset()
	}

	step := time.NewTicker(core.LoopIntervalMillis * time.Millisecond)
	defer step.Stop()

	for {
		select {
		case s := <-sig:
			log.Printf("signal %v, shutting down", s)
			// Silence the buzzer before the process lets go of the pin
			_ = core.MustGPIO().SetPin(core.GPIOPin(*buzzerPin), false)
			if ferr := ctx.PA.Flush(); ferr != nil {
				log.Printf("settings flush: %v", ferr)
			}
			if consolePort != nil {
				consolePort.Close()
			}
			return

		case data := <-consoleRx:
			updateMillis()
			inputBuffer.Write(data)
			pump()

		case <-step.C:
			updateMillis()
			ctx.Step()
			flushConsole()
			ctx.Console.CheckPendingReset()
		}
	}
}

// consoleReader feeds port bytes to the main loop. Exits on the first
// real read error, which includes the port closing at shutdown.
func consoleReader(port serial.Port, rx chan<- []byte) {
	buf := make([]byte, 64)
	for {
		n, err := port.Read(buf)
		if err != nil {
			log.Printf("console read: %v", err)
			return
		}
		if n == 0 {
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		rx <- data
	}
}
