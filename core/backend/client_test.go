package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koscakluka/ema-studio/core/audio"
	"github.com/koscakluka/ema-studio/core/dialogue"
	"github.com/koscakluka/ema-studio/core/flow"
	"github.com/koscakluka/ema-studio/core/generation"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, WithHTTPClient(server.Client()))
}

func TestTranscribe_UploadsWAVForm(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/whisper/transcribe", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		require.Equal(t, "utterance.wav", header.Filename)
		require.Equal(t, "audio/wav", header.Header.Get("Content-Type"))
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		require.Equal(t, "RIFF", string(data[:4]))

		_ = json.NewEncoder(w).Encode(map[string]string{"text": "  I run a coffee shop "})
	})
	client.SetAccessToken("secret")

	text, err := client.Transcribe(context.Background(), audio.Utterance{
		Data:     make([]byte, 32000),
		Encoding: audio.GetDefaultEncodingInfo(),
	})
	require.NoError(t, err)
	require.Equal(t, "I run a coffee shop", text)
}

func TestTurn_GuestSessionOnlyWithoutToken(t *testing.T) {
	var received []dialogue.Request
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/gpt/dialogue", r.URL.Path)
		var req dialogue.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		received = append(received, req)
		_, _ = w.Write([]byte(`{"session_key":"s-1","type":"ad","next_question":null,"final_content":null}`))
	})

	reply, err := client.Turn(context.Background(), dialogue.Request{UserInput: "hi", GuestSessionID: "guest"})
	require.NoError(t, err)
	require.Equal(t, "s-1", reply.SessionKey)
	require.True(t, reply.IsAdvertisement())
	require.Nil(t, reply.NextQuestion)

	client.SetAccessToken("token")
	_, err = client.Turn(context.Background(), dialogue.Request{UserInput: "hi", GuestSessionID: "guest"})
	require.NoError(t, err)

	require.Len(t, received, 2)
	require.Equal(t, "guest", received[0].GuestSessionID)
	require.Empty(t, received[1].GuestSessionID)
}

func TestTurn_StatusError(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	})

	_, err := client.Turn(context.Background(), dialogue.Request{UserInput: "hi"})
	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	require.Contains(t, statusErr.Body, "model overloaded")
}

func TestPreviewCutout_DecodesDataURL(t *testing.T) {
	cutout := testPNG(t, 4, 3)
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/segmentation/preview", r.URL.Path)
		_, _, err := r.FormFile("file")
		require.NoError(t, err)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"cutout_image": "data:image/png;base64," + base64.StdEncoding.EncodeToString(cutout),
			"message":      "looks good",
		})
	})

	preview, err := client.PreviewCutout(context.Background(), flow.Image{Name: "coffee.png", ContentType: "image/png", Data: []byte{1}})
	require.NoError(t, err)
	require.Equal(t, "looks good", preview.Message)
	require.Equal(t, "image/png", preview.Cutout.ContentType)
	require.Equal(t, cutout, preview.Cutout.Data)
	require.Equal(t, 4, preview.Cutout.Width)
	require.Equal(t, 3, preview.Cutout.Height)
}

func TestUploadImage_SendsSessionKey(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/gpt/dialogue/upload-image", r.URL.Path)
		require.Equal(t, "s-1", r.FormValue("session_key"))
		_, header, err := r.FormFile("product_image")
		require.NoError(t, err)
		require.Equal(t, "coffee.png", header.Filename)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	err := client.UploadImage(context.Background(), "s-1", flow.Image{Name: "coffee.png", Data: []byte{1}})
	require.NoError(t, err)
}

func TestSynthesize_SendsPresetAndAudioPromptForVideo(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/diffusion/synthesize/auto/upload", r.URL.Path)
		require.Equal(t, "latte art", r.FormValue("prompt"))
		require.Equal(t, "rigid", r.FormValue("imageMode"))
		require.Equal(t, "0.90", r.FormValue("control_weight"))
		require.Equal(t, "0.55", r.FormValue("ip_adapter_scale"))
		require.Equal(t, "lofi beat", r.FormValue("bgmPrompt"))
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("mp4"))
	})

	media, err := client.Synthesize(context.Background(), generation.SynthesisRequest{
		Format:      flow.OutputFormatVideo,
		Mode:        flow.CompositionRigid,
		ImagePrompt: "latte art",
		AudioPrompt: "lofi beat",
		Image:       flow.Image{Data: []byte{1}},
	})
	require.NoError(t, err)
	require.Equal(t, "video/mp4", media.ContentType)
	require.Equal(t, []byte("mp4"), media.Data)
}

func TestSynthesize_OmitsAudioPromptForImages(t *testing.T) {
	generated := testPNG(t, 8, 6)
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.FormValue("bgmPrompt"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(generated)
	})

	media, err := client.Synthesize(context.Background(), generation.SynthesisRequest{
		Format:      flow.OutputFormatImageAndAudio,
		Mode:        flow.CompositionBalanced,
		AudioPrompt: "lofi beat",
		Image:       flow.Image{Data: []byte{1}},
	})
	require.NoError(t, err)
	require.Equal(t, 8, media.Width)
	require.Equal(t, 6, media.Height)
}

func TestGenerateAudio_DefaultDuration(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/audio/generate/raw", r.URL.Path)
		var body audioRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "lofi beat", body.Prompt)
		require.Equal(t, 20, body.DurationSec)
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("wav"))
	})

	media, err := client.GenerateAudio(context.Background(), generation.AudioRequest{Prompt: "lofi beat"})
	require.NoError(t, err)
	require.Equal(t, "audio/wav", media.ContentType)

	_, err = client.GenerateAudio(context.Background(), generation.AudioRequest{Prompt: "lofi beat", Duration: 20 * time.Second})
	require.NoError(t, err)
}

func TestApplyCaption_SendsStyleAndImage(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/text/apply", r.URL.Path)
		require.Equal(t, "Fresh brew", r.FormValue("text"))
		require.Equal(t, "default", r.FormValue("font_mode"))
		require.Equal(t, "bottom", r.FormValue("mode"))
		require.Equal(t, "640", r.FormValue("width"))
		require.Equal(t, "255", r.FormValue("color_g"))
		_, _, err := r.FormFile("image_file")
		require.NoError(t, err)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("captioned"))
	})

	media, err := client.ApplyCaption(context.Background(),
		generation.DefaultCaptionStyle("Fresh brew", 640, 480),
		flow.Image{Data: []byte{1}})
	require.NoError(t, err)
	require.Equal(t, []byte("captioned"), media.Data)
}

func TestFonts_FetchedOnce(t *testing.T) {
	var calls atomic.Int32
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/text/fonts", r.URL.Path)
		calls.Add(1)
		_, _ = w.Write([]byte(`{"fonts":["default","serif"]}`))
	})

	for range 3 {
		fonts, err := client.Fonts(context.Background())
		require.NoError(t, err)
		require.Equal(t, []string{"default", "serif"}, fonts)
	}
	require.Equal(t, int32(1), calls.Load())
}
