package qr

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strings"
)

// zbarEngine shells out to zbarimg when it is installed; zbar tolerates
// logo-occluded codes the zxing port gives up on. The image goes through a
// temp PNG that is always removed, success or not.
type zbarEngine struct {
	path string
}

func newZBarEngine() *zbarEngine {
	path, _ := exec.LookPath("zbarimg")
	return &zbarEngine{path: path}
}

func (e *zbarEngine) Name() string    { return "zbar" }
func (e *zbarEngine) Available() bool { return e.path != "" }

func (e *zbarEngine) Decode(ctx context.Context, img *image.Gray) (string, error) {
	if e.path == "" {
		return "", fmt.Errorf("zbarimg not installed")
	}

	f, err := os.CreateTemp("", "qrscan-*.png")
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	tmpPath := f.Name()
	defer os.Remove(tmpPath)

	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("encode temp png: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	// --raw prints payloads only; restrict symbologies to QR.
	cmd := exec.CommandContext(ctx, e.path,
		"--quiet", "--raw", "-Sdisable", "-Sqrcode.enable", tmpPath)
	out, err := cmd.Output()
	if err != nil {
		// exit status 4 = scanned but nothing found
		return "", err
	}

	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
	return "", nil
}
