package ocr

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// DetectRotation runs the engine's orientation-and-script detection mode and
// parses the reported rotation (0, 90, 180 or 270 degrees). Satisfies
// imageprep.RotationDetector.
func (e *Extractor) DetectRotation(ctx context.Context, path string) (int, error) {
	args := []string{path, "stdout", "--psm", "0"}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return 0, fmt.Errorf("osd: %w (%s)", err, truncate(string(errb), 512))
	}

	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, "Rotate:") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		angle, perr := strconv.Atoi(strings.TrimSpace(parts[1]))
		if perr != nil {
			return 0, fmt.Errorf("osd: parse rotation %q: %w", line, perr)
		}
		return angle, nil
	}
	return 0, nil
}
