//go:build linux && (arm || arm64)

package trigger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

// openGPIO requests the given BCM GPIO as an input on the Linux GPIO
// character device. Active-low switches read 1 when closed.
func openGPIO(pin int, activeLow bool) (input, error) {
	if pin <= 0 {
		return nil, errors.Errorf("trigger: invalid gpio pin %d", pin)
	}

	lineName := fmt.Sprintf("GPIO%d", pin)

	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", name))
		}
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithConsumer("trickctl-trigger")}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow, gpiocdev.WithPullUp)
	} else {
		opts = append(opts, gpiocdev.WithPullDown)
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, opts...)
		if err != nil {
			_ = chip.Close()
			continue
		}
		return &gpiodInput{chip: chip, line: line}, nil
	}

	return nil, errors.Errorf("trigger: gpio line %q not found (or busy)", lineName)
}

var openGPIOFn = openGPIO

type gpiodInput struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (g *gpiodInput) Value() (int, error) {
	if g == nil || g.line == nil {
		return 0, errors.New("trigger: gpio input not initialized")
	}
	return g.line.Value()
}

func (g *gpiodInput) Close() error {
	if g == nil || g.line == nil {
		return nil
	}
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
