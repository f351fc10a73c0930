// Command gifkit is a thin collaborator around the gifkit library: it
// decodes a GIF to a directory of PNG frames, or encodes a list of
// PNG files into a GIF. It does not implement any codec logic itself
// (§6.1).
package main

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gifkit/gifkit"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gifkit",
		Short: "Decode and encode animated GIFs",
	}
	root.AddCommand(newDecodeCmd(), newEncodeCmd())
	return root
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <in.gif> <out-dir>",
		Short: "Decode every frame of a GIF to PNG files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(args[0], args[1])
		},
	}
}

func runDecode(inPath, outDir string) error {
	f, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer f.Close()

	img, err := gifkit.Decode(f, gifkit.DeinterlaceAuto)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	for i := 0; i < img.FrameCount(); i++ {
		outPath := filepath.Join(outDir, fmt.Sprintf("frame-%03d.png", i))
		out, err := os.Create(outPath)
		if err != nil {
			return err
		}
		err = png.Encode(out, img.RGBAAt(i))
		closeErr := out.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return closeErr
		}
	}

	size := img.Size()
	fmt.Printf("decoded %dx%d, %d frame(s), loop=%d\n", size.X, size.Y, img.FrameCount(), img.LoopCount())
	if c := img.Comment(); c != "" {
		fmt.Printf("comment: %s\n", c)
	}
	return nil
}

func newEncodeCmd() *cobra.Command {
	var delayMS int
	var loopCount int
	cmd := &cobra.Command{
		Use:   "encode <out.gif> <in1.png> [in2.png ...]",
		Short: "Encode a sequence of PNG frames into an animated GIF",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(args[0], args[1:], delayMS, loopCount)
		},
	}
	cmd.Flags().IntVar(&delayMS, "delay", 100, "frame delay in milliseconds")
	cmd.Flags().IntVar(&loopCount, "loop", 0, "loop count (0 = infinite)")
	return cmd
}

func runEncode(outPath string, inPaths []string, delayMS, loopCount int) error {
	frames := make([]gifkit.Frame, 0, len(inPaths))
	var size image.Point

	for i, path := range inPaths {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		src, err := png.Decode(f)
		f.Close()
		if err != nil {
			return err
		}

		rgba := toRGBA(src)
		if i == 0 {
			b := rgba.Bounds()
			size = image.Point{X: b.Dx(), Y: b.Dy()}
		}
		frames = append(frames, gifkit.FrameFromRGBA(rgba, delayMS))
	}

	img, err := gifkit.EncodeAnimation(frames, size, loopCount, "")
	if err != nil {
		return err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := img.Encode(out); err != nil {
		return err
	}
	fmt.Printf("encoded %d frame(s) to %s\n", len(frames), outPath)
	return nil
}

func toRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok {
		return rgba
	}
	b := src.Bounds()
	rgba := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			rgba.Set(x, y, src.At(x, y))
		}
	}
	return rgba
}
