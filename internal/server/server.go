package server

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/KaramelBytes/veiltext-cli/internal/obfuscate"
	"github.com/KaramelBytes/veiltext-cli/internal/parser"
	"github.com/KaramelBytes/veiltext-cli/internal/review"
	"github.com/KaramelBytes/veiltext-cli/internal/session"
	"github.com/KaramelBytes/veiltext-cli/internal/workspace"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// scoreWait bounds how long ?wait=true holds a score request open.
const scoreWait = 60 * time.Second

type Server struct {
	app    *fiber.App
	ws     *workspace.Workspace
	logger *zap.Logger
}

func New(ws *workspace.Workspace, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{ws: ws, logger: logger}
	s.app = fiber.New(fiber.Config{
		BodyLimit:             parser.MaxUploadBytes + 1<<20,
		// params and bodies outlive the handler in the store and review panel
		Immutable:             true,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(s.requestLog)
	s.registerRoutes(s.app.Group("/api"))
	return s
}

func (s *Server) App() *fiber.App { return s.app }

// Listen blocks serving addr until ctx is cancelled.
func (s *Server) Listen(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.app.Listen(addr) }()
	s.logger.Info("api listening", zap.String("addr", addr))
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			return err
		}
		s.ws.Wait()
		return nil
	}
}

func (s *Server) registerRoutes(r fiber.Router) {
	r.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })

	d := r.Group("/documents")
	d.Get("", s.listDocuments)
	d.Post("", s.createDocument)
	d.Post("/show-all", s.showAll)
	d.Get("/:id", s.showDocument)
	d.Patch("/:id", s.renameDocument)
	d.Put("/:id/content", s.writeContent)
	d.Delete("/:id", s.closeDocument)
	d.Post("/:id/activate", s.activate)
	d.Post("/:id/hide", s.hide)
	d.Post("/:id/obfuscate", s.obfuscate)
	d.Post("/:id/strip", s.strip)
	d.Post("/:id/score", s.score)
	d.Post("/:id/selection", s.selection)
	d.Post("/:id/selection/new-tab", s.selectionToNewTab)
	d.Post("/:id/selection/score", s.scoreSelection)

	r.Post("/uploads", s.upload)
	r.Get("/uploads", s.listUploads)
	r.Delete("/uploads", s.clearUploads)
	r.Delete("/uploads/:index", s.removeUpload)
	r.Get("/reviews", s.reviews)
	r.Get("/entitlements", s.entitlements)
}

func (s *Server) requestLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.logger.Debug("request",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", c.Response().StatusCode()),
		zap.Duration("took", time.Since(start)))
	return err
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, session.ErrNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, workspace.ErrPremiumLocked):
		code = fiber.StatusPaymentRequired
	case errors.Is(err, parser.ErrUnsupported):
		code = fiber.StatusUnsupportedMediaType
	}
	if code >= 500 {
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) listDocuments(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"documents": s.ws.Store.List(),
		"active_id": s.ws.Store.ActiveID(),
	})
}

func (s *Server) createDocument(c *fiber.Ctx) error {
	var req CreateDocumentRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	doc := s.ws.Store.CreateDocument(req.Title)
	return c.Status(fiber.StatusCreated).JSON(doc)
}

func (s *Server) showDocument(c *fiber.Ctx) error {
	doc, err := s.ws.Store.Get(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(doc)
}

func (s *Server) renameDocument(c *fiber.Ctx) error {
	var req RenameRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	doc, err := s.ws.Store.RenameDocument(c.Params("id"), req.Title)
	if err != nil {
		return err
	}
	return c.JSON(doc)
}

func (s *Server) writeContent(c *fiber.Ctx) error {
	var req ContentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	doc, err := s.ws.Write(c.Params("id"), *req.Content)
	if err != nil {
		return err
	}
	return c.JSON(doc)
}

// closeDocument demands ?confirm=true before closing the last document.
func (s *Server) closeDocument(c *fiber.Ctx) error {
	id := c.Params("id")
	err := s.ws.Store.CloseDocument(id, c.QueryBool("confirm", false))
	if errors.Is(err, session.ErrLastDocument) {
		return fiber.NewError(fiber.StatusConflict, "closing the last document discards its content; repeat with ?confirm=true")
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"closed": id, "active_id": s.ws.Store.ActiveID()})
}

func (s *Server) activate(c *fiber.Ctx) error {
	if err := s.ws.Store.SetActive(c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"active_id": s.ws.Store.ActiveID()})
}

func (s *Server) hide(c *fiber.Ctx) error {
	doc, err := s.ws.Store.HideDocument(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(doc)
}

func (s *Server) showAll(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"shown": s.ws.Store.ShowAll()})
}

func (s *Server) listUploads(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"uploads": s.ws.Store.Uploads()})
}

func (s *Server) clearUploads(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"cleared": s.ws.Store.ClearUploads()})
}

func (s *Server) removeUpload(c *fiber.Ctx) error {
	i, err := c.ParamsInt("index")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "index must be an integer")
	}
	u, err := s.ws.Store.RemoveUpload(i)
	if err != nil {
		return err
	}
	return c.JSON(u)
}

func (s *Server) obfuscate(c *fiber.Ctx) error {
	var req ObfuscateRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	mode, err := obfuscate.ParseMode(req.Mode)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	res, err := s.ws.AntiDetect(c.Params("id"), mode)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) strip(c *fiber.Ctx) error {
	doc, removed, err := s.ws.Strip(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"document": doc, "removed": removed})
}

// score answers 202 right away, or the outcome itself with ?wait=true.
func (s *Server) score(c *fiber.Ctx) error {
	// detached from the request so the score still lands if the client leaves
	ctx, cancel := context.WithTimeout(context.Background(), scoreWait)
	ch, err := s.ws.Score(ctx, c.Params("id"))
	if err != nil {
		cancel()
		return err
	}
	if !c.QueryBool("wait", false) {
		go func() {
			<-ch
			cancel()
		}()
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"doc_id": c.Params("id"), "status": "pending"})
	}
	defer cancel()
	return outcomeJSON(c, <-ch)
}

func (s *Server) scoreSelection(c *fiber.Ctx) error {
	var req SelectionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), scoreWait)
	defer cancel()
	ch, err := s.ws.ScoreSelection(ctx, c.Params("id"), req.Start, req.End)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return err
		}
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return outcomeJSON(c, <-ch)
}

func outcomeJSON(c *fiber.Ctx, out review.Outcome) error {
	if out.Err != nil {
		status := fiber.StatusBadGateway
		if errors.Is(out.Err, review.ErrSuperseded) {
			status = fiber.StatusConflict
		}
		return c.Status(status).JSON(fiber.Map{"error": out.Err.Error(), "doc_id": out.DocID})
	}
	return c.JSON(out)
}

func (s *Server) selection(c *fiber.Ctx) error {
	var req SelectionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Action == "" {
		return fiber.NewError(fiber.StatusBadRequest, "action is required")
	}
	doc, err := s.ws.ApplySelection(c.Params("id"), req.Action, req.Start, req.End)
	if err != nil {
		return err
	}
	return c.JSON(doc)
}

func (s *Server) selectionToNewTab(c *fiber.Ctx) error {
	var req SelectionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	doc, err := s.ws.SelectionToNewTab(c.Params("id"), req.Start, req.End)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(doc)
}

func (s *Server) upload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart field \"file\" is required")
	}
	f, err := fh.Open()
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, parser.MaxUploadBytes+1))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), scoreWait)
	doc, ch, err := s.ws.Upload(ctx, fh.Filename, data)
	if err != nil {
		cancel()
		if errors.Is(err, parser.ErrUnsupported) {
			return err
		}
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	go func() {
		if ch != nil {
			<-ch
		}
		cancel()
	}()
	return c.Status(fiber.StatusCreated).JSON(doc)
}

func (s *Server) reviews(c *fiber.Ctx) error {
	entries := []review.Entry{}
	threshold := 0
	if s.ws.Review != nil {
		entries = s.ws.Review.Entries()
		threshold = s.ws.Review.Threshold()
	}
	return c.JSON(fiber.Map{"entries": entries, "threshold": threshold})
}

func (s *Server) entitlements(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"premium": s.ws.PremiumAllowed()})
}
