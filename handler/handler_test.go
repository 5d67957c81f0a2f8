package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/TIANLI0/maskpaint/config"
	"github.com/TIANLI0/maskpaint/model"
	"github.com/TIANLI0/maskpaint/raster"
	"github.com/TIANLI0/maskpaint/service"
	"github.com/TIANLI0/maskpaint/session"
	"github.com/gin-gonic/gin"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router   *gin.Engine
	datasets *service.DatasetService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	opts := session.DefaultOptions()
	opts.MoveInterval = 0

	ctx, cancel := context.WithCancel(context.Background())
	loop := session.NewLoop(session.New(opts, nil), 5*time.Millisecond)
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	datasets := service.NewDatasetService(t.TempDir())
	r := SetupRouter(
		NewSessionHandler(cfg, loop, datasets),
		NewDatasetHandler(datasets),
		BuildInfo{Version: "test"},
	)
	return &testServer{router: r, datasets: datasets}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return ts.serve(t, req)
}

func (ts *testServer) serve(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, env
}

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, data []byte, contentType string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="image"; filename="1.png"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (ts *testServer) upload(t *testing.T, w, h int, fields map[string]string) model.ImageInfo {
	t.Helper()
	rec, env := ts.serve(t, uploadRequest(t, pngBytes(t, w, h, color.Gray{Y: 128}), "image/png", fields))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", rec.Code, rec.Body.String())
	}
	var info model.ImageInfo
	if err := json.Unmarshal(env.Data, &info); err != nil {
		t.Fatal(err)
	}
	return info
}

func (ts *testServer) mask(t *testing.T) *raster.Buffer {
	t.Helper()
	rec, env := ts.do(t, http.MethodGet, "/api/v1/mask", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("mask: %d %s", rec.Code, rec.Body.String())
	}
	var payload model.RasterPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatal(err)
	}
	img, err := raster.DecodeBase64Image(payload.Image)
	if err != nil {
		t.Fatal(err)
	}
	return raster.FromImage(img)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"test"`) {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodOptions, "/api/v1/pointer", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}
	// 前端上传标签时带 type 头
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "type") {
		t.Fatalf("type header not allowed: %q", rec.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestUploadRejectsType(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.serve(t, uploadRequest(t, []byte("GIF89a"), "image/gif", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d", rec.Code)
	}
}

func TestPointerWithoutImage(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(t, http.MethodPost, "/api/v1/pointer", model.PointerEvent{Type: "down", X: 5, Y: 5})
	if rec.Code != http.StatusConflict {
		t.Fatalf("got %d", rec.Code)
	}
}

func TestPointerRejectsUnknownType(t *testing.T) {
	ts := newTestServer(t)
	ts.upload(t, 20, 20, nil)
	rec, _ := ts.do(t, http.MethodPost, "/api/v1/pointer", model.PointerEvent{Type: "hover"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d", rec.Code)
	}
}

func TestDrawAndUndoOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	info := ts.upload(t, 30, 30, nil)
	if info.Width != 30 || info.Height != 30 || info.MD5 == "" {
		t.Fatalf("unexpected info %+v", info)
	}

	for _, ev := range []model.PointerEvent{
		{Type: "down", X: 10, Y: 10, Timestamp: 1},
		{Type: "move", X: 20, Y: 10, Timestamp: 100},
		{Type: "leave", Timestamp: 120},
	} {
		if rec, _ := ts.do(t, http.MethodPost, "/api/v1/pointer", ev); rec.Code != http.StatusOK {
			t.Fatalf("%s: %d %s", ev.Type, rec.Code, rec.Body.String())
		}
	}

	m := ts.mask(t)
	if raster.CountOn(m) == 0 || m.RGBAAt(15, 10).A != 255 {
		t.Fatal("stroke not drawn")
	}

	rec, env := ts.do(t, http.MethodPost, "/api/v1/undo", nil)
	if rec.Code != http.StatusOK || !strings.Contains(string(env.Data), `"applied":true`) {
		t.Fatalf("undo: %d %s", rec.Code, rec.Body.String())
	}
	if n := raster.CountOn(ts.mask(t)); n != 0 {
		t.Fatalf("%d pixels on after undo", n)
	}

	if rec, _ := ts.do(t, http.MethodPost, "/api/v1/redo", nil); rec.Code != http.StatusOK {
		t.Fatal(rec.Body.String())
	}
	if raster.CountOn(ts.mask(t)) == 0 {
		t.Fatal("redo did not restore stroke")
	}
}

func TestRightClickFills(t *testing.T) {
	ts := newTestServer(t)
	ts.upload(t, 20, 20, nil)

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/pointer", model.PointerEvent{Type: "down", X: 3, Y: 3, Button: 2})
	if rec.Code != http.StatusOK {
		t.Fatal(rec.Body.String())
	}
	if n := raster.CountOn(ts.mask(t)); n != 400 {
		t.Fatalf("filled %d pixels, want 400", n)
	}
}

func TestFillEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.upload(t, 20, 20, nil)

	tol := 0
	rec, env := ts.do(t, http.MethodPost, "/api/v1/fill", model.FillRequest{X: 1, Y: 1, Tolerance: &tol})
	if rec.Code != http.StatusOK {
		t.Fatal(rec.Body.String())
	}
	var got struct{ Filled int }
	json.Unmarshal(env.Data, &got)
	if got.Filled != 400 {
		t.Fatalf("filled %d", got.Filled)
	}
}

func TestBrushAndColor(t *testing.T) {
	ts := newTestServer(t)

	rec, env := ts.do(t, http.MethodPut, "/api/v1/brush", model.BrushRequest{Mode: "erase", Size: 12})
	if rec.Code != http.StatusOK {
		t.Fatal(rec.Body.String())
	}
	var st model.SessionState
	json.Unmarshal(env.Data, &st)
	if st.Mode != "erase" || st.BrushSize != 12 {
		t.Fatalf("state %+v", st)
	}

	if rec, _ := ts.do(t, http.MethodPut, "/api/v1/brush", model.BrushRequest{Mode: "spray"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d", rec.Code)
	}
	if rec, _ := ts.do(t, http.MethodPut, "/api/v1/preview/color", model.ColorRequest{Color: "red"}); rec.Code != http.StatusOK {
		t.Fatal(rec.Body.String())
	}
	if rec, _ := ts.do(t, http.MethodPut, "/api/v1/preview/color", model.ColorRequest{Color: "#zz"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d", rec.Code)
	}
}

func TestPreviewEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.upload(t, 10, 10, nil)
	ts.do(t, http.MethodPost, "/api/v1/fill", model.FillRequest{X: 0, Y: 0})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, env := ts.do(t, http.MethodGet, "/api/v1/preview", nil)
		var payload model.RasterPayload
		json.Unmarshal(env.Data, &payload)
		img, err := raster.DecodeBase64Image(payload.Image)
		if err != nil {
			t.Fatal(err)
		}
		if raster.FromImage(img).RGBAAt(5, 5) == raster.DefaultPreviewColor {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("preview never rendered")
}

func TestSaveMaskAndOpen(t *testing.T) {
	ts := newTestServer(t)
	ts.upload(t, 20, 20, map[string]string{"dataset": "test1", "name": "1.JPG"})
	ts.do(t, http.MethodPost, "/api/v1/fill", model.FillRequest{X: 0, Y: 0})

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/mask/save", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("save: %d %s", rec.Code, rec.Body.String())
	}

	// 标签以 base64 文本返回
	rec, _ = ts.do(t, http.MethodGet, "/datasets/test1/labels/1.png", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get label: %d", rec.Code)
	}
	labelImg, err := raster.DecodeBase64Image(rec.Body.String())
	if err != nil {
		t.Fatal(err)
	}
	if raster.CountOn(raster.FromImage(labelImg)) != 400 {
		t.Fatal("saved label incomplete")
	}

	// 打开同一图像时自动载入标签
	if err := ts.datasets.SaveImage("test1", "1.JPG", pngBytes(t, 20, 20, color.White)); err != nil {
		t.Fatal(err)
	}
	rec, env := ts.do(t, http.MethodPost, "/api/v1/image/open", model.OpenImageRequest{Dataset: "test1", Image: "1.JPG"})
	if rec.Code != http.StatusOK || !strings.Contains(string(env.Data), `"label_found":true`) {
		t.Fatalf("open: %d %s", rec.Code, rec.Body.String())
	}
	if raster.CountOn(ts.mask(t)) != 400 {
		t.Fatal("label not loaded")
	}
	_, env = ts.do(t, http.MethodGet, "/api/v1/state", nil)
	var st model.SessionState
	json.Unmarshal(env.Data, &st)
	if st.UndoDepth != 0 {
		t.Fatalf("undo depth %d after open", st.UndoDepth)
	}
}

func TestSaveMaskWithoutSource(t *testing.T) {
	ts := newTestServer(t)
	ts.upload(t, 10, 10, nil)
	if rec, _ := ts.do(t, http.MethodPost, "/api/v1/mask/save", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d", rec.Code)
	}
}

func TestDatasetRoutes(t *testing.T) {
	ts := newTestServer(t)
	data := pngBytes(t, 4, 4, color.White)
	body := model.LabelBody{Label: "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)}

	if rec, _ := ts.do(t, http.MethodGet, "/datasets/d/labels/a.png", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing label: %d", rec.Code)
	}
	if rec, _ := ts.do(t, http.MethodPost, "/datasets/d/labels/a.png", body); rec.Code != http.StatusOK {
		t.Fatal(rec.Body.String())
	}
	rec, _ := ts.do(t, http.MethodGet, "/datasets/d/labels/a.png", nil)
	if rec.Body.String() != base64.StdEncoding.EncodeToString(data) {
		t.Fatal("label content mismatch")
	}

	img := model.ImageBody{Image: base64.StdEncoding.EncodeToString([]byte("jpeg"))}
	if rec, _ := ts.do(t, http.MethodPost, "/datasets/d/images/1.JPG", img); rec.Code != http.StatusOK {
		t.Fatal(rec.Body.String())
	}
	if rec, _ := ts.do(t, http.MethodPost, "/datasets/d/images/1.JPG", model.ImageBody{Image: "!!"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("got %d", rec.Code)
	}
	if rec, _ := ts.do(t, http.MethodGet, "/datasets/..%2F/images/1.JPG", nil); rec.Code == http.StatusOK {
		t.Fatal("traversal accepted")
	}
}

func TestPointerAbort(t *testing.T) {
	ts := newTestServer(t)
	ts.upload(t, 30, 30, nil)

	for _, ev := range []model.PointerEvent{
		{Type: "down", X: 10, Y: 10, Timestamp: 1},
		{Type: "move", X: 20, Y: 10, Timestamp: 100},
		{Type: "abort"},
	} {
		if rec, _ := ts.do(t, http.MethodPost, "/api/v1/pointer", ev); rec.Code != http.StatusOK {
			t.Fatalf("%s: %d %s", ev.Type, rec.Code, rec.Body.String())
		}
	}

	_, env := ts.do(t, http.MethodGet, "/api/v1/state", nil)
	var st model.SessionState
	json.Unmarshal(env.Data, &st)
	if st.Drawing {
		t.Fatal("stroke still active after abort")
	}
	if !raster.IsBinary(ts.mask(t)) {
		t.Fatal("mask not binary after abort")
	}

	// 中止后的移动不再绘制
	before := raster.CountOn(ts.mask(t))
	ts.do(t, http.MethodPost, "/api/v1/pointer", model.PointerEvent{Type: "move", X: 25, Y: 25, Timestamp: 300})
	if raster.CountOn(ts.mask(t)) != before {
		t.Fatal("move after abort changed the mask")
	}
}
