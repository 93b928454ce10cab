package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"learnhub_backend/internal/model"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/monitoring"
)

const (
	DownloadTypeLesson = "lesson"
	DownloadTypeVideo  = "video"

	defaultChunkSize = 8192
)

// DownloadRequest /download 查询参数
type DownloadRequest struct {
	Type        string `form:"type"`
	LessonID    uint   `form:"lesson_id" binding:"required"`
	File        string `form:"file"`
	Disposition string `form:"disposition"`
}

// Delivery 准备好的文件响应；RedirectURL 非空时直接跳转，不读取存储
type Delivery struct {
	Type        string
	RedirectURL string
	Filename    string
	Disposition string
	ContentType string
	Size        int64
	Range       *util.ByteRange
	Body        io.ReadCloser
}

// ContentLength 本次响应实际发送的字节数
func (d *Delivery) ContentLength() int64 {
	if d.Range != nil {
		return d.Range.Length()
	}
	return d.Size
}

type DeliveryService struct {
	Access    *AccessService
	Storage   *StorageService
	ChunkSize int
}

func NewDeliveryService(access *AccessService, storage *StorageService, chunkSize int) *DeliveryService {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &DeliveryService{Access: access, Storage: storage, ChunkSize: chunkSize}
}

func isExternalURL(u string) bool {
	lower := strings.ToLower(u)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Prepare 校验权限并打开待发送的文件区间。
// 附件下载要求课程访问权限；inline 查看和视频额外允许预览课时。
func (s *DeliveryService) Prepare(ctx context.Context, actor Actor, req DownloadRequest, rangeHeader string) (*Delivery, error) {
	if !actor.Authenticated() {
		return nil, util.ErrUnauthorized
	}

	d := &Delivery{Type: req.Type, Disposition: req.Disposition}
	if d.Type == "" {
		d.Type = DownloadTypeLesson
	}
	if d.Disposition == "" {
		d.Disposition = util.DispositionAttachment
		if d.Type == DownloadTypeVideo {
			d.Disposition = util.DispositionInline
		}
	}
	if d.Type != DownloadTypeLesson && d.Type != DownloadTypeVideo {
		return nil, fmt.Errorf("%w: unknown type %q", util.ErrValidation, req.Type)
	}
	if d.Disposition != util.DispositionAttachment && d.Disposition != util.DispositionInline {
		return nil, fmt.Errorf("%w: unknown disposition %q", util.ErrValidation, req.Disposition)
	}

	lesson, err := s.Access.LoadLesson(actor, req.LessonID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, lesson, d); err != nil {
		return nil, err
	}

	var key string
	switch d.Type {
	case DownloadTypeLesson:
		att, ok := lesson.FindAttachment(util.SafeFilename(req.File))
		if !ok {
			return nil, util.ErrFileNotFound
		}
		key = AttachmentKey(lesson.Course.Category, att.Filename)
		d.Filename = att.OriginalName
		if d.Filename == "" {
			d.Filename = att.Filename
		}
	case DownloadTypeVideo:
		if lesson.VideoURL == "" {
			return nil, util.ErrFileNotFound
		}
		if isExternalURL(lesson.VideoURL) {
			d.RedirectURL = lesson.VideoURL
			return d, nil
		}
		d.Filename = util.SafeFilename(lesson.VideoURL)
		key = VideoKey(lesson.Course.Category, d.Filename)
	}

	info, err := s.Storage.Stat(ctx, key)
	if err != nil {
		if errors.Is(err, util.ErrFileNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	d.Size = info.Size
	d.ContentType = info.ContentType

	if d.Range, err = util.ParseRange(rangeHeader, info.Size); err != nil {
		return d, err
	}

	offset, length := int64(0), int64(-1)
	if d.Range != nil {
		offset, length = d.Range.Start, d.Range.Length()
	}
	if d.Body, err = s.Storage.OpenRange(ctx, key, offset, length); err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return d, nil
}

func (s *DeliveryService) authorize(actor Actor, lesson *model.Lesson, d *Delivery) error {
	var (
		ok  bool
		err error
	)
	if d.Type == DownloadTypeLesson && d.Disposition == util.DispositionAttachment {
		ok, err = s.Access.CanAccessCourse(actor, lesson.Course)
	} else {
		ok, err = s.Access.CanAccessLesson(actor, lesson)
	}
	if err != nil {
		return fmt.Errorf("check access: %w", err)
	}
	if !ok {
		return s.Access.denied(actor)
	}
	return nil
}

// Stream 以固定大小的缓冲区把文件写到 w；写失败立即终止，Body 总会被关闭
func (s *DeliveryService) Stream(w io.Writer, d *Delivery) (int64, error) {
	if d.Body == nil {
		return 0, nil
	}
	defer d.Body.Close()

	buf := make([]byte, s.ChunkSize)
	var written int64
	defer func() {
		monitoring.FileBytesServed.WithLabelValues(d.Type).Add(float64(written))
	}()

	for {
		n, rerr := d.Body.Read(buf)
		if n > 0 {
			m, werr := w.Write(buf[:n])
			written += int64(m)
			if werr != nil {
				return written, werr
			}
			if m < n {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
