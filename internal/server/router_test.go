package server

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/abhijithm34/chat-app/internal/config"
	"github.com/abhijithm34/chat-app/internal/db"
	"github.com/abhijithm34/chat-app/internal/files"
	"github.com/abhijithm34/chat-app/internal/rooms"
	"github.com/abhijithm34/chat-app/internal/service"
	"github.com/abhijithm34/chat-app/internal/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type testEnv struct {
	roomSvc *service.RoomService
	keeper  *files.Keeper
}

var (
	dbOnce sync.Once
	gdbRef *gorm.DB
	dbErr  error
)

func testRouter(t *testing.T) (*gin.Engine, *testEnv) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dbOnce.Do(func() {
		gdbRef, dbErr = db.Connect("host=localhost user=postgres password=postgres dbname=chatapp port=5432 sslmode=disable TimeZone=UTC")
		if dbErr == nil {
			dbErr = db.Migrate(gdbRef)
		}
	})
	if dbErr != nil {
		t.Skipf("skip: db not available: %v", dbErr)
	}
	gdb := gdbRef
	cfg := config.Config{
		Port:               "0",
		Env:                "dev",
		UploadDir:          t.TempDir(),
		CreatorTokenSecret: "secret",
		FileTTL:            30 * time.Minute,
		SweepInterval:      time.Minute,
		MaxUploadBytes:     5 << 20,
		MaxMessageChars:    1000,
	}
	roomSvc := service.NewRoomService(gdb)
	msgSvc := service.NewMessageService(gdb)
	uploadSvc := service.NewUploadService(gdb)
	dir := rooms.NewDirectory()
	hub := ws.NewHub()
	keeper := files.NewKeeper(cfg.UploadDir, cfg.FileTTL, uploadSvc, msgSvc, hub)
	h := NewHandler(cfg, roomSvc, msgSvc, keeper, hub, dir)
	return SetupRouter(cfg, h, hub, dir, roomSvc, msgSvc), &testEnv{roomSvc: roomSvc, keeper: keeper}
}

func TestStaticMount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	staticDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(staticDir, "app.js"), []byte("ok"), 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}

	tests := []struct {
		name       string
		staticDir  string
		wantStatus int
	}{
		{"existing dir is served", staticDir, http.StatusOK},
		{"missing dir is not mounted", filepath.Join(staticDir, "nope"), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Config{UploadDir: t.TempDir(), StaticDir: tt.staticDir}
			dir := rooms.NewDirectory()
			hub := ws.NewHub()
			h := NewHandler(cfg, nil, nil, nil, hub, dir)
			engine := SetupRouter(cfg, h, hub, dir, nil, nil)

			req := httptest.NewRequest(http.MethodGet, "/static/app.js", nil)
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("GET /static/app.js = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	engine, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestGetRoom_NotFound(t *testing.T) {
	engine, _ := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rooms/"+service.NewCode(), nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestUpload_Validation(t *testing.T) {
	engine, env := testRouter(t)

	code := service.NewCode()
	if _, _, err := env.roomSvc.Create(code, "alice", false); err != nil {
		t.Fatalf("create room: %v", err)
	}

	tests := []struct {
		name       string
		room       string
		nickname   string
		filename   string
		fileType   string
		body       []byte
		wantStatus int
	}{
		{"missing file", code, "alice", "", "", nil, http.StatusBadRequest},
		{"missing nickname", code, "", "a.png", "image/png", []byte("x"), http.StatusBadRequest},
		{"unknown room", service.NewCode(), "alice", "a.png", "image/png", []byte("x"), http.StatusNotFound},
		{"unsupported type", code, "alice", "a.exe", "application/x-dosexec", []byte("x"), http.StatusUnsupportedMediaType},
		{"accepted png", code, "alice", "a.png", "image/png", []byte("pngbytes"), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			mp := multipart.NewWriter(&buf)
			mp.WriteField("room", tt.room)
			mp.WriteField("nickname", tt.nickname)
			if tt.filename != "" {
				hdr := make(textproto.MIMEHeader)
				hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+tt.filename+`"`)
				hdr.Set("Content-Type", tt.fileType)
				part, err := mp.CreatePart(hdr)
				if err != nil {
					t.Fatalf("create part: %v", err)
				}
				part.Write(tt.body)
			}
			mp.Close()

			req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &buf)
			req.Header.Set("Content-Type", mp.FormDataContentType())
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}
