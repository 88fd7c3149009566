package app

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/d1nch8g/gpiobell/audio"
	"github.com/d1nch8g/gpiobell/config"
)

// Check prints every line's playlist and decodes each clip under
// audioRoot. It returns the number of clips that could not be decoded.
func Check(w io.Writer, fs afero.Fs, audioRoot string, pins config.PinMap) int {
	decoder := audio.NewDecoder(fs)
	failed := 0

	for _, pin := range pins.Pins() {
		clips := pins[pin]
		fmt.Fprintf(w, "pin %d: %s\n", pin, strings.Join(clips, ", "))
		for _, clip := range clips {
			path := clip
			if !filepath.IsAbs(path) {
				path = filepath.Join(audioRoot, clip)
			}
			d, err := decoder.Duration(path)
			if err != nil {
				failed++
				fmt.Fprintf(w, "  FAIL %s: %v\n", path, err)
				continue
			}
			fmt.Fprintf(w, "  ok   %s (%s)\n", path, d.Round(10*time.Millisecond))
		}
	}
	return failed
}
