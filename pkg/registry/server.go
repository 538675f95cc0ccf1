// Package registry implements the Registry HTTP surface: the asset
// catalog (`/data/info`, `/data/info/{name}`) and the download
// endpoints (`/data/download/{name}`, `/results/download/{name}`) the
// data transfer protocol's Transferer pulls from. Every download is
// gated on the requesting principal's client certificate and, when a
// Checker is set, a checker CheckTransfer verdict.
package registry

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/brane-project/brane/pkg/checker"
	"github.com/brane-project/brane/pkg/ir"
	"github.com/brane-project/brane/pkg/registry/assetstore"
)

// Checker is the subset of *checker.Client the registry consults before
// serving a download, narrowed to an interface for testability.
type Checker interface {
	CheckTransfer(ctx context.Context, req checker.TransferRequest) (checker.Verdict, error)
}

// Server serves one domain's Registry HTTP surface.
type Server struct {
	Domain      string
	Assets      assetstore.Store
	ResultsRoot string // filesystem root of published IntermediateResult directories
	Checker     Checker

	// AllowHeaderPrincipal accepts X-Brane-Principal as a fallback
	// identity source when the connection carries no client certificate.
	// Off by default; intended only for deployments where a trusted
	// sidecar already terminated and validated mTLS upstream of this
	// process.
	AllowHeaderPrincipal bool

	engine *gin.Engine
}

// New constructs a Server and wires its routes.
func New(domain string, assets assetstore.Store, resultsRoot string, chk Checker) *Server {
	s := &Server{Domain: domain, Assets: assets, ResultsRoot: resultsRoot, Checker: chk}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

// Handler returns the server's http.Handler, suitable for http.Serve or
// httptest.NewServer.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	s.engine.GET("/data/info", s.handleDataInfoList)
	s.engine.GET("/data/info/:name", s.handleDataInfo)
	s.engine.GET("/data/download/:name", s.handleDataDownload)
	s.engine.GET("/results/download/:name", s.handleResultsDownload)
}

func (s *Server) handleDataInfoList(c *gin.Context) {
	list, err := s.Assets.List(c.Request.Context())
	if err != nil {
		respondAPIError(c, err)
		return
	}
	if list == nil {
		list = []assetstore.AssetInfo{}
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleDataInfo(c *gin.Context) {
	info, err := s.Assets.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleDataDownload(c *gin.Context) {
	name := c.Param("name")
	s.handleDownload(c, ir.Dataset(name), s.Assets.Path(name))
}

func (s *Server) handleResultsDownload(c *gin.Context) {
	name := c.Param("name")
	s.handleDownload(c, ir.IntermediateResult(name), filepath.Join(s.ResultsRoot, name))
}

// downloadRequest is the `{use_case, workflow, task?}` body 
// requires of every download request.
type downloadRequest struct {
	UseCase  string             `json:"use_case"`
	Workflow json.RawMessage    `json:"workflow"`
	Task     *ir.ProgramCounter `json:"task,omitempty"`
}

func (s *Server) handleDownload(c *gin.Context, name ir.DataName, contentDir string) {
	principalID, ok := requestPrincipal(c, s.AllowHeaderPrincipal)
	if !ok {
		respondAPIError(c, ErrPrincipalRequired)
		return
	}

	var body downloadRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondAPIError(c, fmt.Errorf("%w: %v", ErrInvalidRequestBody, err))
		return
	}

	if _, err := os.Stat(contentDir); err != nil {
		respondAPIError(c, fmt.Errorf("%w: %s", ErrAssetNotFound, name))
		return
	}

	if s.Checker != nil {
		endUser := workflowEndUser(body.Workflow)
		verdict, err := s.Checker.CheckTransfer(c.Request.Context(), checker.TransferRequest{
			Name:      name,
			ToDomain:  principalID,
			Principal: principalID,
			EndUser:   endUser,
		})
		if err != nil {
			respondAPIError(c, fmt.Errorf("%w: %v", ErrCheckerUnavailable, err))
			return
		}
		if !verdict.Allowed {
			c.JSON(http.StatusForbidden, gin.H{"code": "TRANSFER_DENIED", "reasons": verdict.Reasons})
			return
		}
	}

	c.Header("Content-Type", "application/gzip")
	if err := writeTarGz(c.Writer, contentDir); err != nil {
		// Headers/partial body may already be flushed; nothing more to
		// tell the client at this point beyond truncating the stream.
		return
	}
}

func workflowEndUser(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var wf ir.Workflow
	if err := json.Unmarshal(raw, &wf); err != nil {
		return ""
	}
	return wf.EndUser
}

// requestPrincipal resolves the calling identity: the client
// certificate's CN when mTLS terminates at this process, or (only when
// explicitly enabled) a trusted X-Brane-Principal header.
func requestPrincipal(c *gin.Context, allowHeader bool) (string, bool) {
	if c.Request.TLS != nil && len(c.Request.TLS.PeerCertificates) > 0 {
		return c.Request.TLS.PeerCertificates[0].Subject.CommonName, true
	}
	if allowHeader {
		if v := c.GetHeader("X-Brane-Principal"); v != "" {
			return v, true
		}
	}
	return "", false
}

func writeTarGz(w http.ResponseWriter, contentDir string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := filepath.WalkDir(contentDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(contentDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		tw.Close()
		gz.Close()
		return fmt.Errorf("%w: %v", ErrArchiveFailed, err)
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}
