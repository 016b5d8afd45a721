package server

import (
	"errors"
	"fmt"
	"net/http"

	"semembed/api"
	"semembed/embedding"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
)

func (s *Server) handleEmbeddings(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes)
	body, err := c.GetRawData()
	if err != nil {
		err = bodyError(err)
		s.engine.Reject("", err)
		s.writeError(c, err)
		return
	}

	raw, err := api.Decode(body)
	if err != nil {
		s.engine.Reject("", err)
		s.writeError(c, err)
		return
	}

	resp, err := s.engine.Embed(c.Request.Context(), raw)
	if err != nil {
		s.writeError(c, err)
		return
	}

	// vectors dominate the payload, sonic is much faster than encoding/json here
	data, err := sonic.Marshal(resp)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", data)
}

// handleHealth always answers 200 once the process is serving: the
// default model loads on demand, so readiness is only reported.
func (s *Server) handleHealth(c *gin.Context) {
	h := s.engine.Health()
	resp := api.HealthResponse{
		Status: "healthy",
		Ready:  h.Ready,
		Model:  s.engine.DefaultModel(),
		Models: h.LoadedModels,
	}
	if !h.Ready {
		resp.Status = "loading"
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleModels(c *gin.Context) {
	c.JSON(http.StatusOK, api.ModelsResponse{Models: s.engine.Models()})
}

func (s *Server) handleCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, api.ModelList{Object: "list", Data: s.engine.Catalog()})
}

func bodyError(err error) *embedding.Error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return embedding.ValidationError(embedding.KindRequestTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
	}
	return &embedding.Error{Kind: embedding.KindInvalidJSON, Message: "fail to read request body", Err: err}
}
