package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const defaultFPS = 30.0

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

// probeFrameRate asks ffprobe for the first video stream's frame rate.
func (c *Codec) probeFrameRate(ctx context.Context, path string) (float64, error) {
	cmd := newCommand(ctx, c.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_type,r_frame_rate,avg_frame_rate",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, cmd.wrap(err)
	}
	return parseProbe(out)
}

func parseProbe(out []byte) (float64, error) {
	var res probeOutput
	if err := json.Unmarshal(out, &res); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(res.Streams) == 0 {
		return 0, fmt.Errorf("no video stream")
	}

	s := res.Streams[0]
	for _, rate := range []string{s.AvgFrameRate, s.RFrameRate} {
		if fps, ok := parseRate(rate); ok {
			return fps, nil
		}
	}
	return defaultFPS, nil
}

// parseRate accepts "30", "29.97" or a rational like "30000/1001".
func parseRate(rate string) (float64, bool) {
	num, den, found := strings.Cut(strings.TrimSpace(rate), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	if !found {
		return n, true
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d <= 0 {
		return 0, false
	}
	return n / d, true
}
