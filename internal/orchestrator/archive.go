package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archiver writes a completed build's log lines to disk at
// <log_path>/<build_id>.log, one line per message, overwriting any
// prior file for the same ID — per spec §6's disk layout. It optionally
// mirrors the same file to an S3-compatible bucket.
//
// The S3 leg is grounded on the teacher's internal/iceberg/writer/s3.go
// MinIOClient, trimmed to the single Upload call this domain needs.
type Archiver struct {
	logPath string
	logger  *slog.Logger
	s3      *minio.Client
	bucket  string
}

// S3Config names the optional S3-compatible archival destination.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// NewArchiver returns an Archiver writing under logPath. s3 may be nil to
// disable the optional remote mirror.
func NewArchiver(logPath string, s3 *S3Config, logger *slog.Logger) (*Archiver, error) {
	a := &Archiver{logPath: logPath, logger: logger}
	if s3 == nil {
		return a, nil
	}

	client, err := minio.New(s3.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(s3.AccessKey, s3.SecretKey, ""),
		Secure: s3.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating s3 archive client: %w", err)
	}
	a.s3 = client
	a.bucket = s3.Bucket
	return a, nil
}

// Write persists result's log lines to <logPath>/<id>.log, then fires an
// optional async S3 upload. Disk write failures are logged, not
// returned — log-file write failure is silently-ignored per spec §7.
func (a *Archiver) Write(result BuildResult) {
	if err := os.MkdirAll(a.logPath, 0o755); err != nil {
		a.logger.Warn("archive: mkdir failed", "path", a.logPath, "error", err)
		return
	}

	path := filepath.Join(a.logPath, result.ID.String()+".log")
	var buf bytes.Buffer
	for _, l := range result.Logs {
		buf.WriteString(l.Message)
		buf.WriteByte('\n')
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		a.logger.Warn("archive: write failed", "path", path, "error", err)
		return
	}

	if a.s3 != nil {
		go a.uploadToS3(path, result.ID.String()+".log", buf.Bytes())
	}
}

func (a *Archiver) uploadToS3(localPath, objectName string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := a.s3.PutObject(ctx, a.bucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "text/plain"})
	if err != nil {
		a.logger.Warn("archive: s3 upload failed", "object", objectName, "error", err)
	}
}
