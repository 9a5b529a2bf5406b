package sftp

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"
)

// Upload 上传单个文件到 remotePath，远程目录需已存在
func (c *Client) Upload(ctx context.Context, localPath, remotePath string, progress ProgressCallback) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stat local path failed: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", localPath)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := c.fs.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create remote file %s: %w", remotePath, err)
	}
	defer dst.Close()

	if err := c.fs.Chmod(remotePath, info.Mode().Perm()); err != nil {
		return fmt.Errorf("chmod remote file %s: %w", remotePath, err)
	}
	size := info.Size()
	if c.config.ThreadsPerFile <= 1 || size < c.config.ChunkSize {
		return streamTransfer(ctx, src, dst, progress)
	}
	return c.chunkedTransfer(ctx, src, dst, size, progress)
}

// chunkedTransfer 按块并发写入，ReadAt/WriteAt 都是并发安全的
func (c *Client) chunkedTransfer(ctx context.Context, src io.ReaderAt, dst io.WriterAt, size int64, progress ProgressCallback) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.ThreadsPerFile)
	chunkSize := c.config.ChunkSize

	for offset := int64(0); offset < size; offset += chunkSize {
		offset := offset
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n := min(chunkSize, size-offset)
			buf := make([]byte, n)
			read, err := src.ReadAt(buf, offset)
			if err != nil && err != io.EOF {
				return fmt.Errorf("read local at %d failed: %w", offset, err)
			}
			if read == 0 {
				return nil
			}
			if _, err := dst.WriteAt(buf[:read], offset); err != nil {
				return fmt.Errorf("write remote at %d failed: %w", offset, err)
			}
			if progress != nil {
				progress(read)
			}
			return nil
		})
	}
	return g.Wait()
}

func streamTransfer(ctx context.Context, r io.Reader, w io.Writer, progress ProgressCallback) error {
	buf := make([]byte, DefaultChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			if _, wErr := w.Write(buf[:n]); wErr != nil {
				return wErr
			}
			if progress != nil {
				progress(n)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
