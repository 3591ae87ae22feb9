// Package fetcher resolves a dataset location to a local spreadsheet.
// Locations may be local paths or http(s)/ftp URLs, and a .zip is
// unpacked to the spreadsheet inside it.
package fetcher

import (
	"context"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fetcher downloads a remote file.
type Fetcher interface {
	// DownloadToFile writes the body at rawURL to dest and returns the
	// bytes written.
	DownloadToFile(ctx context.Context, rawURL, dest string) (int64, error)
}

// Resolver picks a Fetcher by URL scheme.
type Resolver struct {
	HTTP Fetcher
	FTP  Fetcher
}

// NewResolver returns a Resolver with default HTTP and FTP fetchers.
func NewResolver() *Resolver {
	return &Resolver{
		HTTP: NewHTTPFetcher(HTTPOptions{}),
		FTP:  NewFTPFetcher(FTPOptions{}),
	}
}

// Resolve returns a local path for src, downloading into dir when src is
// a URL and unpacking archives. Local non-archive paths are returned as is.
func (r *Resolver) Resolve(ctx context.Context, src, dir string) (string, error) {
	local := src
	u, err := url.Parse(src)
	if err == nil && u.Scheme != "" && u.Scheme != "file" && len(u.Scheme) > 1 {
		var f Fetcher
		switch u.Scheme {
		case "http", "https":
			f = r.HTTP
		case "ftp":
			f = r.FTP
		default:
			return "", eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
		}

		name := path.Base(u.Path)
		if name == "." || name == "/" {
			return "", eris.Errorf("fetcher: no file name in %q", src)
		}
		local = filepath.Join(dir, name)
		n, err := f.DownloadToFile(ctx, src, local)
		if err != nil {
			return "", eris.Wrapf(err, "fetcher: download %s", src)
		}
		zap.L().Info("fetcher: downloaded", zap.String("url", src), zap.Int64("bytes", n))
	} else if err == nil && u.Scheme == "file" {
		local = u.Path
	}

	if strings.EqualFold(filepath.Ext(local), ".zip") {
		return ExtractDataset(local, dir)
	}
	return local, nil
}
