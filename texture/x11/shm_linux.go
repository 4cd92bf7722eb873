//go:build linux

package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/shm"
	"github.com/BurntSushi/xgb/xproto"
	"golang.org/x/sys/unix"

	"github.com/gogpu/compose"
	"github.com/gogpu/compose/texture"
)

// shmSegment is a SysV shared memory segment attached on both sides of
// the connection.
type shmSegment struct {
	seg  shm.Seg
	id   int
	data []byte
}

// AttachSharedMemory creates a segment large enough for a width x height
// image and attaches it to the server.
func (s *Source) AttachSharedMemory(width, height int) error {
	if s.shm.data != nil {
		return nil
	}
	if err := shm.Init(s.conn); err != nil {
		return fmt.Errorf("x11: MIT-SHM unavailable: %w", err)
	}

	size := rowstride(width, s.bitsPerPixel, s.scanlinePad) * height
	id, err := unix.SysvShmGet(unix.IPC_PRIVATE, size, unix.IPC_CREAT|0o600)
	if err != nil {
		return fmt.Errorf("x11: shmget: %w", err)
	}
	data, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		_, _ = unix.SysvShmCtl(id, unix.IPC_RMID, nil)
		return fmt.Errorf("x11: shmat: %w", err)
	}

	seg, err := shm.NewSegId(s.conn)
	if err == nil {
		err = shm.AttachChecked(s.conn, seg, uint32(id), false).Check()
	}
	if err != nil {
		_ = unix.SysvShmDetach(data)
		_, _ = unix.SysvShmCtl(id, unix.IPC_RMID, nil)
		return fmt.Errorf("x11: attach segment: %w", err)
	}

	s.shm = shmSegment{seg: seg, id: id, data: data}
	compose.Logger().Debug("x11: shared memory segment attached", "bytes", size)
	return nil
}

// GetSharedImage fetches a rectangle of the pixmap into the segment. The
// image is valid until the next call.
func (s *Source) GetSharedImage(x, y, width, height int) (*texture.Image, error) {
	if s.shm.data == nil {
		return nil, compose.NewError(compose.DomainTexturePixmap, "get shared image", compose.ErrUnsupported,
			"no shared memory segment attached")
	}
	_, err := shm.GetImage(s.conn, xproto.Drawable(s.pixmap), int16(x), int16(y), uint16(width), uint16(height),
		^uint32(0), xproto.ImageFormatZPixmap, s.shm.seg, 0).Reply()
	if err != nil {
		return nil, compose.WrapError(compose.DomainTexturePixmap, "get shared image", compose.ErrExternalResource, err)
	}
	img := s.newImage(width, height, nil)
	img.Data = s.shm.data[:img.Rowstride*height]
	return img, nil
}

// DetachSharedMemory releases the segment.
func (s *Source) DetachSharedMemory() {
	if s.shm.data == nil {
		return
	}
	shm.Detach(s.conn, s.shm.seg)
	if err := unix.SysvShmDetach(s.shm.data); err != nil {
		compose.Logger().Warn("x11: shmdt failed", "err", err)
	}
	if _, err := unix.SysvShmCtl(s.shm.id, unix.IPC_RMID, nil); err != nil {
		compose.Logger().Warn("x11: removing shared memory segment failed", "err", err)
	}
	s.shm = shmSegment{}
}
