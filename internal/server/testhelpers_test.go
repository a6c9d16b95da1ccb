// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"net/http"

	"github.com/vkomic/vkomic-core/pkg/downloadmgr"
)

// newTestDownloadManager builds a manager the way ListenAndServe would,
// for handler tests that run without an actual listening server.
func (s *Server) newTestDownloadManager() *downloadmgr.Manager {
	return downloadmgr.New(context.Background(), s.config.MaxActive, http.DefaultClient, s.onDownloadProgress, s.onDownloadResult)
}
