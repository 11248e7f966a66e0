//go:build linux

// Desktop simulator for the clock firmware. The whole core runs
// against fake hardware: an in-RAM RTC that boots with lost power so
// the first network sync is real, a throwaway settings store, the
// keyboard as the button and the terminal bell as the buzzer. The
// provisioning console is served over TCP so clockctl can drive it:
//
//	goclock-sim &
//	clockctl -device tcp:127.0.0.1:5555 status
//
// Space taps the button, holding space holds it, q quits.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goclock/core"
	"goclock/protocol"
	"goclock/sntp"
)

const (
	simButtonPin = core.GPIOPin(2)
	simBuzzerPin = core.GPIOPin(3)
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
	listen := flag.String("listen", "127.0.0.1:5555", "console listen address, empty to disable")
	flag.Parse()

	button := &KeyButton{}

	core.SetRTCDriver(NewFakeRTC())
	core.SetKVDriver(NewMemStore())
	core.SetGPIODriver(NewSimGPIODriver(button, simButtonPin, simBuzzerPin))
	core.SetSensorDriver(FakeSensor{})

	core.SetDebugWriter(func(msg string) {
		fmt.Printf("%s\r\n", msg)
	})
	core.SetDebugEnabled(true)
	core.SetUptimeSource(func() uint64 {
		return uint64(time.Since(processStart).Milliseconds())
	})
	updateMillis()

	ctx := core.NewCoreContext(core.CoreConfig{
		ButtonPin: simButtonPin,
		BuzzerPin: simBuzzerPin,
		Display:   TermDisplay{},
		Query:     HostTimeQuery{},
		Sleep: func(ms uint32) {
			time.Sleep(time.Duration(ms) * time.Millisecond)
			updateMillis()
		},
	})

	dict := ctx.Console.Dictionary()
	dict.AddConstant("MCU", "sim")
	dict.AddConstant("CLOCK_FREQ", uint32(1000))
	dict.BuildDictionary()

	inputBuffer := protocol.NewFifoBuffer(256)
	outputBuffer := protocol.NewScratchOutput()
	transport := protocol.NewTransport(outputBuffer, ctx.Console.HandleFrame)
	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
	})
	ctx.Console.AttachTransport(transport)

	server := &consoleServer{}
	flushConsole := func() {
		result := outputBuffer.Result()
		if len(result) == 0 {
			return
		}
		server.Write(result)
		outputBuffer.Reset()
	}
	transport.SetFlushCallback(flushConsole)

	consoleRx := make(chan consoleInput, 32)
	if *listen != "" {
		ln, err := net.Listen("tcp", *listen)
		if err != nil {
			fmt.Fprintf(os.Stderr, "listen %s: %v\n", *listen, err)
			os.Exit(1)
		}
		defer ln.Close()
		go server.serve(ln, consoleRx)
	}

	// A commanded reset ends the process; a supervisor (or the user)
	// starts a fresh boot
	ctx.Console.SetResetHandler(func() {
		termLine("reset requested, exiting")
		os.Exit(0)
	})

	// Keyboard, when there is one. Headless runs just skip it.
	var keys chan byte
	term, terr := makeRawTerminal()
	if terr == nil {
		defer term.Restore()
		keys = make(chan byte, 8)
		go keyReader(keys)
	} else {
		termLine("stdin is not a terminal, keyboard button disabled")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	termLine("simulated clock starting")
	if *listen != "" {
		termLine("console on tcp:%s", *listen)
	}
	termLine("keys: space = button, q = quit")

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
		case <-sig:
			termLine("bye")
			server.Close()
			return

		case k, ok := <-keys:
			if !ok {
				keys = nil
				continue
			}
			switch k {
			case ' ':
				button.Press()
			case 'q', 'Q':
				termLine("bye")
				server.Close()
				return
			default:
				termLine("keys: space = button, q = quit")
			}

		case in := <-consoleRx:
			updateMillis()
			if in.newConn {
				inputBuffer.Reset()
				outputBuffer.Reset()
				transport.Reset()
				continue
			}
			inputBuffer.Write(in.data)
			pump()

		case <-step.C:
			updateMillis()
			ctx.Step()
			flushConsole()
			ctx.Console.CheckPendingReset()
		}
	}
}
