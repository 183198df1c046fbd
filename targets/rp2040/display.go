//go:build rp2040

package main

import (
	"image/color"
	"machine"

	"rcadc/core"

	"tinygo.org/x/drivers/ssd1306"
)

// Status panel on a 128x32 SSD1306:
//
//	rows  0..7   channel A mean level of the last block
//	rows 12..19  channel B mean level of the last block
//	rows 24..25  one tick per tear (mod 128)
//	rows 28..31  solid when the capture session is ready
const (
	displayWidth  = 128
	displayHeight = 32
)

var (
	oled      = ssd1306.NewI2C(machine.I2C0)
	oledOK    bool
	pixelOn   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	lastTears uint32
)

func initDisplay() {
	err := machine.I2C0.Configure(machine.I2CConfig{
		SDA:       pinDisplaySDA,
		SCL:       pinDisplaySCL,
		Frequency: 400 * machine.KHz,
	})
	if err != nil {
		core.DebugPrintln("[DISPLAY] i2c: " + err.Error())
		return
	}
	oled.Configure(ssd1306.Config{
		Width:    displayWidth,
		Height:   displayHeight,
		Address:  displayAddress,
		VccState: ssd1306.SWITCHCAPVCC,
	})
	oled.ClearDisplay()
	oledOK = true
	core.Periodic(core.TimerFromUS(displayRefresh), refreshDisplay)
}

func refreshDisplay() {
	if !oledOK {
		return
	}
	a, b := blockLevels(core.LastSamples())
	st := core.CaptureStats()
	if st.Tears != lastTears {
		core.DebugPrintln("[DISPLAY] tear count changed")
		lastTears = st.Tears
	}

	oled.ClearBuffer()
	bar(0, a)
	bar(12, b)
	for i := uint32(0); i < st.Tears && i < displayWidth; i++ {
		x := int16(i)
		oled.SetPixel(x, 24, pixelOn)
		oled.SetPixel(x, 25, pixelOn)
	}
	if !core.IsShutdown() && len(core.LastSamples()) > 0 {
		fill(28, 4, displayWidth)
	}
	if err := oled.Display(); err != nil {
		oledOK = false
	}
}

// blockLevels returns the mean A and B sample of an interleaved block,
// scaled to the panel width.
func blockLevels(block []byte) (a, b int) {
	n := len(block) / 2
	if n == 0 {
		return 0, 0
	}
	var sa, sb int
	for i := 0; i+1 < len(block); i += 2 {
		sa += int(block[i])
		sb += int(block[i+1])
	}
	return sa * displayWidth / (n * 128), sb * displayWidth / (n * 128)
}

func bar(y int16, width int) {
	fill(y, 8, width)
}

func fill(y, h int16, width int) {
	if width > displayWidth {
		width = displayWidth
	}
	for x := int16(0); x < int16(width); x++ {
		for dy := int16(0); dy < h; dy++ {
			oled.SetPixel(x, y+dy, pixelOn)
		}
	}
}
