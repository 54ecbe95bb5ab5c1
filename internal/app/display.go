package app

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"
)

// Screen is the drawable surface of the OLED.
type Screen interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
}

// fixedAddrBus sends every transaction to addr. ssd1306.NewI2C always talks
// to 0x3C; this lets the panel live at 0x3D.
type fixedAddrBus struct {
	i2c.Bus
	addr uint16
}

func (b *fixedAddrBus) Tx(_ uint16, w, r []byte) error {
	return b.Bus.Tx(b.addr, w, r)
}

// OpenDisplay initializes periph, opens busName and the SSD1306 at addr.
func OpenDisplay(busName string, addr uint16) (*ssd1306.Dev, i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open I2C bus: %w", err)
	}

	dev, err := ssd1306.NewI2C(&fixedAddrBus{Bus: bus, addr: addr}, &ssd1306.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, nil, fmt.Errorf("failed to initialize display at 0x%02X: %w", addr, err)
	}
	return dev, bus, nil
}

// Display shows the latest displacement and velocity on a 128x64 OLED.
type Display struct {
	screen Screen
	log    logrus.FieldLogger

	mu   sync.RWMutex
	last Sample
	have bool
}

func NewDisplay(screen Screen, log logrus.FieldLogger) *Display {
	return &Display{screen: screen, log: log.WithField("component", "display")}
}

// Run subscribes to the motion topic and redraws every interval until ctx
// is done.
func (d *Display) Run(ctx context.Context, client Subscriber, motionTopic string, interval time.Duration) error {
	if err := d.screen.Draw(d.screen.Bounds(), renderSplash(), image.Point{}); err != nil {
		d.log.Warnf("error showing splash: %v", err)
	}

	if err := subscribe(client, motionTopic, func(_ mqtt.Client, msg mqtt.Message) {
		d.OnMotion(msg.Payload())
	}); err != nil {
		return err
	}
	d.log.Infof("subscribed to %s", motionTopic)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.log.Info("starting update loop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.Refresh(); err != nil {
				d.log.Warnf("error updating display: %v", err)
			}
		}
	}
}

// OnMotion stores a motion payload for the next refresh.
func (d *Display) OnMotion(payload []byte) {
	var s Sample
	if err := json.Unmarshal(payload, &s); err != nil {
		d.log.Warnf("motion unmarshal error: %v", err)
		return
	}
	d.mu.Lock()
	d.last = s
	d.have = true
	d.mu.Unlock()
}

// Refresh draws the latest sample.
func (d *Display) Refresh() error {
	d.mu.RLock()
	s, have := d.last, d.have
	d.mu.RUnlock()
	return d.screen.Draw(d.screen.Bounds(), renderMotion(s, have), image.Point{})
}

func newCanvas() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	draw.Draw(img, img.Bounds(), &image.Uniform{image1bit.Off}, image.Point{}, draw.Src)
	return img, &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
}

func renderMotion(s Sample, have bool) *image1bit.VerticalLSB {
	img, drawer := newCanvas()

	if !have {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawString("Displacement")
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawString("Waiting...")
		return img
	}

	lines := []string{
		fmt.Sprintf("dX:%+8.3fm", s.Displacement.X),
		fmt.Sprintf("dY:%+8.3fm", s.Displacement.Y),
		fmt.Sprintf("dZ:%+8.3fm", s.Displacement.Z),
		fmt.Sprintf("v:%+.2f %+.2f", s.Velocity.X, s.Velocity.Y),
	}
	for i, line := range lines {
		drawer.Dot = fixed.P(0, 13*(i+1))
		drawer.DrawString(line)
	}
	return img
}

func renderSplash() *image1bit.VerticalLSB {
	img, drawer := newCanvas()

	drawer.Dot = fixed.P(10, 26)
	drawer.DrawString("Disp Monitor")

	drawer.Dot = fixed.P(5, 43)
	drawer.DrawString("Waiting for")

	drawer.Dot = fixed.P(25, 56)
	drawer.DrawString("samples")

	return img
}
