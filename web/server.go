package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	models "github.com/fintechpatents/patentcls"
	"github.com/fintechpatents/patentcls/inference"
	"github.com/fintechpatents/patentcls/render"
)

// Intensity bounds of the highlight slider.
const (
	MinIntensity     = 1
	MaxIntensity     = 100
	DefaultIntensity = 1
)

const shutdownTimeout = 5 * time.Second

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// Catalog lists the models that can be selected. models.Manager satisfies it.
type Catalog interface {
	List(ctx context.Context) ([]models.ModelEntry, error)
	Get(ctx context.Context, id string) (models.ModelEntry, error)
}

// Predictor classifies text with a packed artifact. *inference.Engine
// satisfies it.
type Predictor interface {
	Infer(ctx context.Context, artifactPath, text string) (inference.Result, error)
	Labels() *inference.LabelSpace
}

// PredictRequest is the input of one prediction, sent as a form or JSON.
type PredictRequest struct {
	Model     string `json:"model" form:"model"`
	Text      string `json:"text" form:"text"`
	Intensity int    `json:"intensity" form:"intensity"`
}

// Prediction is the rendered outcome of one prediction.
type Prediction struct {
	RequestID  string                      `json:"request_id"`
	Model      string                      `json:"model"`
	Label      string                      `json:"label"`
	Confidence []inference.LabelConfidence `json:"confidence"`
	Tokens     []inference.TokenWeight     `json:"tokens"`
	Highlight  string                      `json:"highlight"`
	ChartSVG   string                      `json:"chart_svg"`
}

// Server is the web front end.
type Server struct {
	app       *fiber.App
	catalog   Catalog
	predictor Predictor
	logger    Logger
	sample    string
	gc        func()

	// mu serializes prediction cycles.
	mu sync.Mutex
}

// NewServer creates a Server and registers its routes.
func NewServer(catalog Catalog, predictor Predictor, opts ...ServerOption) *Server {
	cfg := &serverConfig{accessLog: os.Stdout, gc: runtime.GC}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &Server{
		catalog:   catalog,
		predictor: predictor,
		logger:    cfg.logger,
		sample:    cfg.sample,
		gc:        cfg.gc,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "patentcls",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{Output: cfg.accessLog}))

	s.app.Get("/", s.handleIndex)
	s.app.Post("/predict", s.handlePredictForm)
	s.app.Post("/api/predict", s.handlePredictJSON)
	s.app.Get("/healthz", s.handleHealth)
	return s
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until ctx is cancelled.
func (s *Server) Listen(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.app.Listen(addr)
	}()
	s.info("listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		s.info("shutting down")
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			return err
		}
		return <-errc
	}
}

// Predict runs one full inference and render cycle.
func (s *Server) Predict(ctx context.Context, req PredictRequest) (Prediction, error) {
	if strings.TrimSpace(req.Text) == "" {
		return Prediction{}, ErrEmptyText
	}
	if req.Intensity == 0 {
		req.Intensity = DefaultIntensity
	}
	if req.Intensity < MinIntensity || req.Intensity > MaxIntensity {
		return Prediction{}, fmt.Errorf("%w: got %d", ErrInvalidIntensity, req.Intensity)
	}

	entry, err := s.catalog.Get(ctx, req.Model)
	if err != nil {
		return Prediction{}, err
	}
	if entry.ArtifactPath == "" {
		return Prediction{}, fmt.Errorf("%w: %s", ErrNotPacked, entry.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.gc()

	id := uuid.NewString()
	start := time.Now()
	res, err := s.predictor.Infer(ctx, entry.ArtifactPath, req.Text)
	if err != nil {
		s.warn("prediction failed", "request_id", id, "model", entry.ID, "error", err)
		return Prediction{}, err
	}

	labels := s.predictor.Labels()
	tokens := make([]string, len(res.Tokens))
	weights := make([]render.Weight, len(res.Tokens))
	for i, tw := range res.Tokens {
		tokens[i] = tw.Text
		weights[i] = render.Weight{Value: tw.Weight, Present: tw.Present}
	}

	highlight, err := render.Highlight(tokens, weights, labels.Color(res.Label), float64(req.Intensity))
	if err != nil {
		return Prediction{}, err
	}
	chart, err := render.Chart(res.Confidence, labels.Colors())
	if err != nil {
		return Prediction{}, err
	}

	s.info("prediction done", "request_id", id, "model", entry.ID, "label", res.Label, "elapsed", time.Since(start))
	return Prediction{
		RequestID:  id,
		Model:      entry.ID,
		Label:      res.Label,
		Confidence: res.Confidence,
		Tokens:     res.Tokens,
		Highlight:  highlight,
		ChartSVG:   string(chart),
	}, nil
}

// pageData is the input of the index template.
type pageData struct {
	Models    []models.ModelEntry
	Selected  models.ModelEntry
	Text      string
	Intensity int
	Min, Max  int

	Result    *Prediction
	Chart     template.URL
	Highlight template.HTML
	Error     string
}

func (s *Server) handleIndex(c *fiber.Ctx) error {
	data, err := s.page(c.UserContext(), c.Query("model"))
	if err != nil {
		return err
	}
	data.Text = s.sample
	return s.renderPage(c, fiber.StatusOK, data)
}

func (s *Server) handlePredictForm(c *fiber.Ctx) error {
	var req PredictRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	data, err := s.page(c.UserContext(), req.Model)
	if err != nil {
		return err
	}
	data.Text = req.Text
	if req.Intensity != 0 {
		data.Intensity = req.Intensity
	}

	pred, err := s.Predict(c.UserContext(), req)
	if err != nil {
		data.Error = err.Error()
		return s.renderPage(c, statusOf(err), data)
	}

	c.Set("X-Request-ID", pred.RequestID)
	data.Result = &pred
	data.Chart = template.URL("data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(pred.ChartSVG)))
	data.Highlight = template.HTML(pred.Highlight)
	return s.renderPage(c, fiber.StatusOK, data)
}

func (s *Server) handlePredictJSON(c *fiber.Ctx) error {
	var req PredictRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	pred, err := s.Predict(c.UserContext(), req)
	if err != nil {
		return fiber.NewError(statusOf(err), err.Error())
	}
	c.Set("X-Request-ID", pred.RequestID)
	return c.JSON(pred)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.SendString("ok")
}

// page lists the models and selects id, or the first model.
func (s *Server) page(ctx context.Context, id string) (pageData, error) {
	entries, err := s.catalog.List(ctx)
	if err != nil {
		return pageData{}, err
	}

	data := pageData{
		Models:    entries,
		Intensity: DefaultIntensity,
		Min:       MinIntensity,
		Max:       MaxIntensity,
	}
	for _, e := range entries {
		if e.ID == id {
			data.Selected = e
			return data, nil
		}
	}
	if len(entries) > 0 {
		data.Selected = entries[0]
	}
	return data, nil
}

func (s *Server) renderPage(c *fiber.Ctx, status int, data pageData) error {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return err
	}
	c.Type("html", "utf-8")
	return c.Status(status).Send(buf.Bytes())
}

// handleError answers API routes with JSON and everything else with text.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logError("request failed", "path", c.Path(), "error", err)
	}

	if strings.HasPrefix(c.Path(), "/api/") {
		return c.Status(code).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(code).SendString(err.Error())
}

// statusOf maps a prediction error to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrEmptyText), errors.Is(err, ErrInvalidIntensity):
		return fiber.StatusBadRequest
	case errors.Is(err, models.ErrModelNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrNotPacked):
		return fiber.StatusConflict
	case errors.Is(err, context.Canceled):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) info(msg string, keysAndValues ...any) {
	if s.logger != nil {
		s.logger.Info(msg, keysAndValues...)
	}
}

func (s *Server) warn(msg string, keysAndValues ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, keysAndValues...)
	}
}

func (s *Server) logError(msg string, keysAndValues ...any) {
	if s.logger != nil {
		s.logger.Error(msg, keysAndValues...)
	}
}
