package vision_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fwojciec/medic"
	"github.com/fwojciec/medic/mock"
	"github.com/fwojciec/medic/vision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x += 7 {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// forgedPNG returns a PNG whose header declares w×h but carries almost no
// pixel data.
func forgedPNG(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk := func(typ string, data []byte) {
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(data)))
		body := append([]byte(typ), data...)
		buf.Write(body)
		_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(body))
	}
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 2 // truecolor
	chunk("IHDR", ihdr)
	chunk("IDAT", []byte{0x78, 0x9c, 0x03, 0x00})
	chunk("IEND", nil)
	return buf.Bytes()
}

const response = `DESCRIPTION: A 2 cm erythematous patch on the forearm.
Borders are well defined.

STRUCTURED_FINDINGS: {"lesion_size": "2 cm", "color": "red", "borders": ["well defined", "regular"], "count": 1}

CONFIDENCE: HIGH - image is sharp and well lit`

func TestPrepare(t *testing.T) {
	t.Parallel()

	t.Run("rejects oversize payload", func(t *testing.T) {
		t.Parallel()
		_, err := vision.Prepare(medic.Image{Data: make([]byte, vision.MaxBytes+1), MimeType: "image/png"})
		assert.ErrorIs(t, err, medic.ErrImageTooLarge)
		assert.ErrorIs(t, err, medic.ErrValidation)
	})

	t.Run("rejects declared format", func(t *testing.T) {
		t.Parallel()
		_, err := vision.Prepare(medic.Image{Data: pngBytes(t, 4, 4), MimeType: "image/gif"})
		assert.ErrorIs(t, err, medic.ErrImageFormat)
	})

	t.Run("rejects pixel count before decoding", func(t *testing.T) {
		t.Parallel()
		data := forgedPNG(20000, 20000)
		require.Less(t, len(data), 100)
		_, err := vision.Prepare(medic.Image{Data: data, MimeType: "image/png"})
		assert.ErrorIs(t, err, medic.ErrImageTooLarge)
		assert.ErrorIs(t, err, medic.ErrValidation)
	})

	t.Run("rejects declared format mismatch", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil))
		_, err := vision.Prepare(medic.Image{Data: buf.Bytes(), MimeType: "image/png"})
		assert.ErrorIs(t, err, medic.ErrImageFormat)
	})

	t.Run("accepts jpg alias", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil))
		p, err := vision.Prepare(medic.Image{Data: buf.Bytes(), MimeType: "image/jpg"})
		require.NoError(t, err)
		assert.Equal(t, "jpeg", p.Format)
	})

	t.Run("rejects undecodable bytes", func(t *testing.T) {
		t.Parallel()
		_, err := vision.Prepare(medic.Image{Data: []byte("GIF89a not really"), MimeType: ""})
		assert.ErrorIs(t, err, medic.ErrImageFormat)
	})

	t.Run("rejects empty image", func(t *testing.T) {
		t.Parallel()
		_, err := vision.Prepare(medic.Image{MimeType: "image/png"})
		assert.ErrorIs(t, err, medic.ErrValidation)
	})

	t.Run("passes small image through untouched", func(t *testing.T) {
		t.Parallel()
		data := pngBytes(t, 50, 50)
		p, err := vision.Prepare(medic.Image{Data: data, MimeType: "image/png"})
		require.NoError(t, err)
		assert.False(t, p.Resized)
		assert.Equal(t, data, p.Data)
		assert.Equal(t, "png", p.Format)
		assert.Equal(t, 50, p.Width)
	})

	t.Run("downscales preserving aspect ratio", func(t *testing.T) {
		t.Parallel()
		p, err := vision.Prepare(medic.Image{Data: pngBytes(t, 5000, 1000), MimeType: "image/png"})
		require.NoError(t, err)
		assert.True(t, p.Resized)
		assert.Equal(t, 4096, p.Width)
		assert.Equal(t, 819, p.Height)
		assert.Equal(t, 5000, p.OriginalWidth)

		cfg, format, err := image.DecodeConfig(bytes.NewReader(p.Data))
		require.NoError(t, err)
		assert.Equal(t, "png", format)
		assert.Equal(t, 4096, cfg.Width)
	})

	t.Run("downscales tall image", func(t *testing.T) {
		t.Parallel()
		p, err := vision.Prepare(medic.Image{Data: pngBytes(t, 100, 8192)})
		require.NoError(t, err)
		assert.Equal(t, 50, p.Width)
		assert.Equal(t, 4096, p.Height)
	})
}

func TestAnalyzer_OversizeFailsBeforeModelCall(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	model := &mock.VisionModel{
		DescribeFn: func(ctx context.Context, req medic.VisionRequest) (string, error) {
			calls.Add(1)
			return response, nil
		},
	}
	var events []medic.StreamEvent
	a := vision.New(model)
	_, err := a.AnalyzeStream(context.Background(),
		medic.Image{Data: make([]byte, 21<<20), MimeType: "image/jpeg"}, "",
		func(e medic.StreamEvent) error {
			events = append(events, e)
			return nil
		})
	assert.ErrorIs(t, err, medic.ErrImageTooLarge)
	assert.Zero(t, calls.Load())
	assert.Empty(t, events)
}

func TestAnalyzer_AnalyzeStream(t *testing.T) {
	t.Parallel()

	var got medic.VisionRequest
	model := &mock.VisionModel{
		DescribeFn: func(ctx context.Context, req medic.VisionRequest) (string, error) {
			got = req
			return response, nil
		},
	}
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := vision.New(model, vision.WithModel("vision-test"), vision.WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))

	var kinds []medic.EventKind
	interp, err := a.AnalyzeStream(context.Background(),
		medic.Image{Data: pngBytes(t, 50, 50), MimeType: "image/png"},
		"rash on my arm",
		func(e medic.StreamEvent) error {
			kinds = append(kinds, e.Kind())
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, []medic.EventKind{
		medic.KindImageValidation,
		medic.KindImageProcessing,
		medic.KindVisionAnalysis,
		medic.KindVisionComplete,
	}, kinds)

	assert.Equal(t, "vision-test", got.Model)
	assert.Equal(t, "image/png", got.Image.MimeType)
	assert.Contains(t, got.Prompt, "Context: rash on my arm")
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.3, *got.Temperature, 1e-9)

	assert.Equal(t, "A 2 cm erythematous patch on the forearm.\nBorders are well defined.", interp.Description)
	assert.Equal(t, []medic.Finding{
		{Label: "lesion_size", Qualifier: "2 cm"},
		{Label: "color", Qualifier: "red"},
		{Label: "borders", Qualifier: "well defined, regular"},
		{Label: "count", Qualifier: "1"},
	}, interp.Findings)
	assert.Equal(t, medic.ConfidenceHigh, interp.Confidence)
	assert.Equal(t, "vision-test", interp.Model)
	assert.Equal(t, time.Second, interp.ProcessingTime)
}

func TestAnalyzer_ModelFailureWrapsUpstream(t *testing.T) {
	t.Parallel()
	model := &mock.VisionModel{
		DescribeFn: func(ctx context.Context, req medic.VisionRequest) (string, error) {
			return "", errors.New("502 bad gateway")
		},
	}
	_, err := vision.New(model).Analyze(context.Background(), medic.Image{Data: pngBytes(t, 10, 10)}, "")
	assert.ErrorIs(t, err, medic.ErrUpstream)
}

func TestAnalyzer_EmitErrorAborts(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	model := &mock.VisionModel{
		DescribeFn: func(ctx context.Context, req medic.VisionRequest) (string, error) {
			calls.Add(1)
			return response, nil
		},
	}
	_, err := vision.New(model).AnalyzeStream(context.Background(),
		medic.Image{Data: pngBytes(t, 10, 10)}, "",
		func(medic.StreamEvent) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("unstructured text", func(t *testing.T) {
		t.Parallel()
		p := vision.Parse("Looks like a healthy knee joint.")
		assert.Equal(t, "Looks like a healthy knee joint.", p.Description)
		assert.Empty(t, p.Findings)
		assert.Equal(t, medic.ConfidenceMedium, p.Confidence)
	})

	t.Run("non-json findings kept raw", func(t *testing.T) {
		t.Parallel()
		p := vision.Parse("DESCRIPTION: x\nSTRUCTURED_FINDINGS: mild swelling\nCONFIDENCE: low")
		assert.Equal(t, []medic.Finding{{Label: "raw", Qualifier: "mild swelling"}}, p.Findings)
		assert.Equal(t, medic.ConfidenceLow, p.Confidence)
	})

	t.Run("fenced multi-line json", func(t *testing.T) {
		t.Parallel()
		p := vision.Parse("DESCRIPTION: x\nSTRUCTURED_FINDINGS:\n```json\n{\"a\": {\"b\": 1}}\n```\nCONFIDENCE: MEDIUM")
		assert.Equal(t, []medic.Finding{{Label: "a", Qualifier: `{"b":1}`}}, p.Findings)
	})

	t.Run("array findings", func(t *testing.T) {
		t.Parallel()
		p := vision.Parse(`STRUCTURED_FINDINGS: ["effusion", "no fracture"]`)
		assert.Equal(t, []medic.Finding{{Label: "effusion"}, {Label: "no fracture"}}, p.Findings)
	})

	t.Run("unknown confidence defaults to medium", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, medic.ConfidenceMedium, vision.Parse("CONFIDENCE: somewhat").Confidence)
	})
}
