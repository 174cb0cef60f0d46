package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Jainish-S/playground/apps/card-generator-go/internal/convert"
	"github.com/Jainish-S/playground/apps/card-generator-go/internal/services"
	"github.com/makiuchi-d/gozxing"
	gozxingqr "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cardFront and cardBack only hold content every converter draws.
const cardFront = `<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="320" height="200">
  <rect width="320" height="200" fill="white"/>
  <image data-variable="qrcode_1" x="20" y="20" width="160" height="160"/>
</svg>`

const cardBack = `<svg xmlns="http://www.w3.org/2000/svg" width="320" height="200">
  <rect width="320" height="200" fill="white"/>
  <image data-variable="profile_photo" x="200" y="10" width="80" height="80" href=""/>
</svg>`

type recordingObserver struct {
	mu       sync.Mutex
	statuses []string
}

func (o *recordingObserver) ObserveRender(status string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

type failingConverter struct{}

func (failingConverter) Rasterize(context.Context, string, string) error {
	return convert.NewConverterError("fake", "rasterize", errors.New("boom"))
}

func (failingConverter) VectorizeToPDF(context.Context, []string, string) error {
	return convert.NewConverterError("fake", "pdf", errors.New("boom"))
}

func newTestRenderer(t *testing.T, conv Converter) (*Renderer, string, *recordingObserver) {
	t.Helper()
	root := t.TempDir()
	obs := &recordingObserver{}
	if conv == nil {
		conv = convert.NewManagerWith(convert.ManagerConfig{DPIX: 96, DPIY: 96}, convert.NewNativeConverter())
	}
	r := NewRenderer(Config{
		Converter: conv,
		QR:        services.NewQRService(),
		TempRoot:  root,
		Observer:  obs,
	})
	return r, root, obs
}

func assertWorkspaceRemoved(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func decodePNG(t *testing.T, uri string) image.Image {
	t.Helper()
	mime, data, err := DecodeDataURI(uri)
	require.NoError(t, err)
	assert.Equal(t, MimePNG, mime)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func solidPNG(t *testing.T, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return EncodeDataURI(MimePNG, buf.Bytes())
}

// readQR decodes the QR symbol on a rendered side, on a white margin.
func readQR(t *testing.T, img image.Image) string {
	t.Helper()
	b := img.Bounds()
	padded := image.NewRGBA(image.Rect(0, 0, b.Dx()+80, b.Dy()+80))
	draw.Draw(padded, padded.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(padded, b.Add(image.Pt(40, 40)), img, b.Min, draw.Over)

	bmp, err := gozxing.NewBinaryBitmapFromImage(padded)
	require.NoError(t, err)
	result, err := gozxingqr.NewQRCodeReader().Decode(bmp, nil)
	require.NoError(t, err)
	return result.GetText()
}

func TestRender_FrontAndBack(t *testing.T) {
	r, root, obs := newTestRenderer(t, nil)
	card := Card{ID: "c-1", FrontSVG: []byte(cardFront), BackSVG: []byte(cardBack)}

	res, err := r.Render(context.Background(), card, map[string]string{"qrcode_1": "hello", "name": "Jane"}, Options{CreateQRCode: true})
	require.NoError(t, err)

	require.Len(t, res.PNG, 2)
	for _, uri := range res.PNG {
		b := decodePNG(t, uri).Bounds()
		assert.Equal(t, 320, b.Dx())
		assert.Equal(t, 200, b.Dy())
	}

	require.True(t, strings.HasPrefix(res.PDF, "data:application/pdf;base64,"))
	_, pdf, err := DecodeDataURI(res.PDF)
	require.NoError(t, err)
	pages, err := convert.PageCount(pdf)
	require.NoError(t, err)
	assert.Equal(t, 2, pages)

	assertWorkspaceRemoved(t, root)
	assert.Equal(t, []string{"success"}, obs.statuses)
}

func TestRender_EmbedsQRCodeAndPhoto(t *testing.T) {
	r, root, _ := newTestRenderer(t, nil)
	card := Card{ID: "c-7", FrontSVG: []byte(cardFront), BackSVG: []byte(cardBack)}
	fields := map[string]string{
		"qrcode_1":      "hello",
		"profile_photo": solidPNG(t, color.RGBA{R: 200, A: 255}),
	}

	res, err := r.Render(context.Background(), card, fields, Options{CreateQRCode: true})
	require.NoError(t, err)
	require.Len(t, res.PNG, 2)

	assert.Equal(t, "hello", readQR(t, decodePNG(t, res.PNG[0])))

	back := decodePNG(t, res.PNG[1])
	cr, cg, cb, _ := back.At(240, 50).RGBA()
	assert.Equal(t, [3]uint32{200 * 0x101, 0, 0}, [3]uint32{cr, cg, cb})
	wr, wg, wb, _ := back.At(100, 100).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0xffff, 0xffff}, [3]uint32{wr, wg, wb})

	assertWorkspaceRemoved(t, root)
}

func TestRender_UndrawableTextFailsWithNativeConverter(t *testing.T) {
	r, root, obs := newTestRenderer(t, nil)
	card := Card{ID: "c-8", FrontSVG: []byte(frontTemplate)}

	_, err := r.Render(context.Background(), card, map[string]string{"name": "Jane"}, Options{FrontOnly: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, convert.ErrConversionFailed)
	assert.ErrorIs(t, err, convert.ErrUnsupportedContent)

	assertWorkspaceRemoved(t, root)
	assert.Equal(t, []string{"error"}, obs.statuses)
}

func TestRender_FrontOnly(t *testing.T) {
	r, root, _ := newTestRenderer(t, nil)
	card := Card{ID: "c-2", FrontSVG: []byte(cardFront), BackSVG: []byte(cardBack)}

	res, err := r.Render(context.Background(), card, map[string]string{}, Options{CreateQRCode: true, FrontOnly: true})
	require.NoError(t, err)

	assert.Len(t, res.PNG, 1)
	_, pdf, err := DecodeDataURI(res.PDF)
	require.NoError(t, err)
	pages, err := convert.PageCount(pdf)
	require.NoError(t, err)
	assert.Equal(t, 1, pages)
	assertWorkspaceRemoved(t, root)
}

func TestRender_MissingFieldsStillRender(t *testing.T) {
	r, _, _ := newTestRenderer(t, nil)
	card := Card{ID: "c-3", FrontSVG: []byte(cardFront), BackSVG: []byte(cardBack)}

	res, err := r.Render(context.Background(), card, nil, Options{CreateQRCode: true})
	require.NoError(t, err)
	assert.Len(t, res.PNG, 2)
	assert.NotEmpty(t, res.PDF)
}

func TestRender_QRCapacityCleansUp(t *testing.T) {
	r, root, obs := newTestRenderer(t, nil)
	card := Card{ID: "c-4", FrontSVG: []byte(cardFront), BackSVG: []byte(cardBack)}

	_, err := r.Render(context.Background(), card, map[string]string{"qrcode_1": strings.Repeat("x", 4000)}, Options{CreateQRCode: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrQRCodeCapacity)

	assertWorkspaceRemoved(t, root)
	assert.Equal(t, []string{"error"}, obs.statuses)
}

func TestRender_ConversionFailureCleansUp(t *testing.T) {
	r, root, _ := newTestRenderer(t, failingConverter{})
	card := Card{ID: "c-5", FrontSVG: []byte(cardFront), BackSVG: []byte(cardBack)}

	_, err := r.Render(context.Background(), card, map[string]string{"qrcode_1": "hello"}, Options{CreateQRCode: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, convert.ErrConversionFailed)

	assertWorkspaceRemoved(t, root)
}

func TestRender_ConcurrentRendersAreIsolated(t *testing.T) {
	r, root, obs := newTestRenderer(t, nil)
	card := Card{ID: "c-6", FrontSVG: []byte(cardFront), BackSVG: []byte(cardBack)}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.Render(context.Background(), card, map[string]string{"qrcode_1": "hello"}, Options{CreateQRCode: true})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assertWorkspaceRemoved(t, root)
	assert.Len(t, obs.statuses, 4)
}

func TestWithWorkspace_RemovesOnError(t *testing.T) {
	root := t.TempDir()
	boom := errors.New("boom")

	err := WithWorkspace(root, func(ws *Workspace) error {
		_, werr := ws.WriteFile(ws.UniqueName(".svg"), []byte("<svg/>"))
		require.NoError(t, werr)
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assertWorkspaceRemoved(t, root)
}
