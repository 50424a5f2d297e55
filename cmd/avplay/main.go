// Command avplay is a minimal terminal demo of the playback engine: it
// opens a single media file and drives it through a textual control strip.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/avplayer/engine/internal/controlstrip"
	"github.com/avplayer/engine/internal/ffmpeg"
	"github.com/avplayer/engine/internal/previewsink"
	"github.com/avplayer/engine/player"
)

func main() {
	volumeFlag := flag.Float64("volume", 1.0, "initial volume, 0.0-1.0")
	startFlag := flag.Float64("start", 0.0, "start position in seconds")
	snapshotFlag := flag.String("snapshot", "", "write each displayed frame to this PPM path, for inspection without a GUI")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: avplay [-volume=v] [-start=seconds] [-snapshot=path] <file>")
		os.Exit(2)
	}

	p, err := player.Open(flag.Arg(0), ffmpeg.Opener{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "avplay: %v\n", err)
		os.Exit(1)
	}
	defer p.Close()

	p.SetVolume(*volumeFlag)
	if *startFlag > 0 {
		p.Seek(*startFlag)
	}
	p.Play()

	var opts []controlstrip.Option
	if *snapshotFlag != "" {
		opts = append(opts, controlstrip.WithPresentationSink(previewsink.NewPPMSink(*snapshotFlag)))
	}

	program := tea.NewProgram(controlstrip.New(p, opts...), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "avplay: %v\n", err)
		os.Exit(1)
	}
}
