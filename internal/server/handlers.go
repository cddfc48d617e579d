package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/born-ml/tokcompare/internal/compare"
	"github.com/born-ml/tokcompare/internal/format"
	"github.com/born-ml/tokcompare/internal/preset"
	"github.com/born-ml/tokcompare/internal/tokenizer"
)

// maxUploadSize bounds uploaded model files.
const maxUploadSize = 32 << 20

// CustomModel is the JSON form of a user supplied SentencePiece model.
type CustomModel struct {
	Name     string `json:"name"`
	ModelURL string `json:"modelUrl,omitempty"`

	// ModelBase64 carries the model file contents.
	ModelBase64 string `json:"modelBase64,omitempty"`
}

func (m *CustomModel) data() (*tokenizer.CustomData, error) {
	if m == nil {
		return nil, nil
	}
	out := &tokenizer.CustomData{Name: m.Name, ModelURL: m.ModelURL}
	if m.ModelBase64 != "" {
		b, err := base64.StdEncoding.DecodeString(m.ModelBase64)
		if err != nil {
			return nil, fmt.Errorf("invalid modelBase64: %w", err)
		}
		out.ModelFile = b
	}
	if out.Name == "" {
		out.Name = tokenizer.IdentifierCustom
	}
	return out, nil
}

type TokenizeRequest struct {
	Tokenizer string       `json:"tokenizer"`
	Text      string       `json:"text"`
	Custom    *CustomModel `json:"custom,omitempty"`
}

type TokenizeResponse struct {
	Tokenizer string `json:"tokenizer"`
	tokenizer.Result
}

type CompareRequest struct {
	Text       string       `json:"text"`
	Tokenizers []string     `json:"tokenizers"`
	Custom     *CustomModel `json:"custom,omitempty"`
}

type CompareResponse struct {
	Results []compare.PanelResult `json:"results"`
}

type TokenizersResponse struct {
	Identifiers []string           `json:"identifiers"`
	Families    []tokenizer.Family `json:"families"`
	Preloaded   []string           `json:"preloaded"`
	Formats     []format.Kind      `json:"formats"`
}

func (s *Server) TokenizersHandler(c *gin.Context) {
	preloaded := make([]string, 0, len(s.opts.Preloaded))
	for _, name := range s.opts.Preloaded {
		preloaded = append(preloaded, tokenizer.PreloadedPrefix+name)
	}
	c.JSON(http.StatusOK, TokenizersResponse{
		Identifiers: tokenizer.KnownIdentifiers(),
		Families:    tokenizer.Families(),
		Preloaded:   preloaded,
		Formats:     format.Kinds(),
	})
}

func (s *Server) TokenizeHandler(c *gin.Context) {
	var req TokenizeRequest
	if err := c.ShouldBindJSON(&req); errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Tokenizer == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "tokenizer is required"})
		return
	}

	var adapter tokenizer.Adapter
	if req.Tokenizer == tokenizer.IdentifierCustom {
		custom, err := req.Custom.data()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		adapter, err = tokenizer.New(req.Tokenizer, custom, s.opts.TokenizerOptions...)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	} else {
		var err error
		adapter, err = s.adapter(req.Tokenizer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	s.tokenize(c, adapter, req.Text)
}

// CustomTokenizeHandler tokenizes with a model uploaded as the multipart
// field "model".
func (s *Server) CustomTokenizeHandler(c *gin.Context) {
	fh, err := c.FormFile("model")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "model file is required"})
		return
	}
	if fh.Size > maxUploadSize {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "model file is too large"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	model, err := io.ReadAll(io.LimitReader(f, maxUploadSize))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	name := c.PostForm("name")
	if name == "" {
		name = fh.Filename
	}

	adapter, err := tokenizer.New(tokenizer.IdentifierCustom, &tokenizer.CustomData{Name: name, ModelFile: model}, s.opts.TokenizerOptions...)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.tokenize(c, adapter, c.PostForm("text"))
}

// tokenize runs adapter and writes the result as JSON, or in the format
// named by the "format" query parameter.
func (s *Server) tokenize(c *gin.Context, adapter tokenizer.Adapter, text string) {
	var kind format.Kind
	if q := c.Query("format"); q != "" {
		var err error
		if kind, err = format.ParseKind(q); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	res, err := compare.Run(c.Request.Context(), adapter, text, s.opts.Timeout)
	if errors.Is(err, context.DeadlineExceeded) {
		c.AbortWithStatusJSON(http.StatusGatewayTimeout, gin.H{"error": fmt.Sprintf("tokenizer %q timed out", adapter.Name())})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	if kind == "" {
		c.JSON(http.StatusOK, TokenizeResponse{Tokenizer: adapter.Name(), Result: res})
		return
	}

	body, err := format.Render(kind, res.Tokens)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, format.ContentType(kind), []byte(body))
}

func (s *Server) CompareHandler(c *gin.Context) {
	var req CompareRequest
	if err := c.ShouldBindJSON(&req); errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if len(req.Tokenizers) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "at least one tokenizer is required"})
		return
	}

	custom, err := req.Custom.data()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	panels := make([]compare.Panel, len(req.Tokenizers))
	for i, id := range req.Tokenizers {
		panels[i] = compare.Panel{Tokenizer: id}
		if id == tokenizer.IdentifierCustom {
			panels[i].Custom = custom
		}
	}

	results, err := s.comparator.Compare(c.Request.Context(), req.Text, panels)
	if errors.Is(err, compare.ErrBatchInFlight) {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, CompareResponse{Results: results})
}

func (s *Server) ListPresetsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Presets.Load())
}

func (s *Server) AddPresetHandler(c *gin.Context) {
	var p preset.Preset
	if err := c.ShouldBindJSON(&p); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	presets, err := s.opts.Presets.Add(p)
	switch {
	case errors.Is(err, preset.ErrNameExists):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, preset.ErrNameRequired), errors.Is(err, preset.ErrNameTooLong):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, presets)
}

// ImportPresetsHandler merges an exported preset list into the store.
func (s *Server) ImportPresetsHandler(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUploadSize))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	presets, err := s.opts.Presets.ImportMerge(data)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, preset.ErrInvalidFormat) {
			status = http.StatusBadRequest
		}
		c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, presets)
}

func (s *Server) ExportPresetsHandler(c *gin.Context) {
	data, err := preset.Export(s.opts.Presets.Load())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="tokenizer_presets.json"`)
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}
