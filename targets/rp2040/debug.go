//go:build rp2040

package main

import (
	"machine"

	"goclock/core"
)

var debugUART *machine.UART

// InitDebugUART routes core debug output to UART0 on the TX/RX header
// pins at 115200 baud. The USB port carries framed console traffic, so
// debug text needs its own wire.
func InitDebugUART() {
	debugUART = machine.UART0

	err := debugUART.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.UART_TX_PIN,
		RX:       machine.UART_RX_PIN,
	})
	if err != nil {
		return
	}

	core.SetDebugWriter(func(msg string) {
		debugUART.Write([]byte(msg))
		debugUART.Write([]byte("\r\n"))
	})
	core.SetDebugEnabled(true)
	core.InitAsyncDebug()

	core.DebugPrintln("=== debug uart up ===")
}
