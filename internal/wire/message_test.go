package wire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/nerrad567/hello-hal/internal/driver"
	"github.com/nerrad567/hello-hal/internal/register"
)

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"open", Request{ID: 1, Op: OpOpen, Path: "/dev/hello"}, false},
		{"read", Request{ID: 2, Op: OpRead, FD: 3, Len: 4}, false},
		{"zero id", Request{ID: 0, Op: OpOpen, Path: "/dev/hello"}, true},
		{"unknown op", Request{ID: 1, Op: Op(9), FD: 3}, true},
		{"open without path", Request{ID: 1, Op: OpOpen}, true},
		{"write without fd", Request{ID: 1, Op: OpWrite, Len: 4}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidMessage) {
				t.Errorf("Validate() error = %v, want ErrInvalidMessage", err)
			}
		})
	}
}

func TestRequest_EncodeDecode(t *testing.T) {
	req := &Request{
		ID:   7,
		Op:   OpWrite,
		FD:   3,
		Len:  register.Width,
		Data: register.Encode(-5),
	}

	data, err := EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest() error = %v", err)
	}

	got, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest() error = %v", err)
	}
	if got.ID != 7 || got.Op != OpWrite || got.FD != 3 || got.Len != register.Width {
		t.Errorf("DecodeRequest() = %+v, want %+v", got, req)
	}
	if !bytes.Equal(got.Data, req.Data) {
		t.Errorf("Data = %x, want %x", got.Data, req.Data)
	}
}

func TestEncodeRequest_Deterministic(t *testing.T) {
	req := &Request{ID: 1, Op: OpOpen, Path: "/dev/hello", Flags: 2}

	a, err := EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest() error = %v", err)
	}
	b, _ := EncodeRequest(req)
	if !bytes.Equal(a, b) {
		t.Errorf("encodings differ: %x vs %x", a, b)
	}
}

func TestDecodeRequest_Invalid(t *testing.T) {
	if _, err := DecodeRequest([]byte{0xff}); err == nil {
		t.Error("DecodeRequest(garbage) error = nil")
	}

	data, _ := Marshal(map[int]any{1: 0, 2: 1})
	if _, err := DecodeRequest(data); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("DecodeRequest(id 0) error = %v, want ErrInvalidMessage", err)
	}
}

func TestDecodeResponse_IgnoresUnknownKeys(t *testing.T) {
	data, err := Marshal(map[int]any{1: 4, 2: 0, 3: 4, 5: []byte{1, 0, 0, 0}, 99: "future"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	resp, err := DecodeResponse(data)
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if resp.ID != 4 || resp.N != 4 || len(resp.Data) != 4 {
		t.Errorf("DecodeResponse() = %+v", resp)
	}
	if resp.Err() != nil {
		t.Errorf("Err() = %v, want nil", resp.Err())
	}
}

func TestErrnoOf(t *testing.T) {
	tests := []struct {
		err  error
		want Errno
	}{
		{nil, OK},
		{register.ErrInterrupted, EINTR},
		{fmt.Errorf("read: %w", register.ErrInterrupted), EINTR},
		{context.Canceled, EINTR},
		{register.ErrFault, EFAULT},
		{driver.ErrPermission, EACCES},
		{driver.ErrNoDevice, ENOENT},
		{driver.ErrBadHandle, EBADF},
		{register.ErrClosed, EBADF},
		{ErrInvalidMessage, EINVAL},
		{fmt.Errorf("open: %w", unix.ENOMEM), ENOMEM},
		{errors.New("boom"), EIO},
	}

	for _, tt := range tests {
		if got := ErrnoOf(tt.err); got != tt.want {
			t.Errorf("ErrnoOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestErrno_Err(t *testing.T) {
	tests := []struct {
		errno    Errno
		sentinel error
	}{
		{EINTR, register.ErrInterrupted},
		{EFAULT, register.ErrFault},
		{EACCES, driver.ErrPermission},
		{ENOENT, driver.ErrNoDevice},
		{EBADF, driver.ErrBadHandle},
	}

	for _, tt := range tests {
		err := tt.errno.Err()
		if !errors.Is(err, tt.sentinel) {
			t.Errorf("%v.Err() = %v, want match for %v", tt.errno, err, tt.sentinel)
		}
		if !errors.Is(err, unix.Errno(tt.errno)) {
			t.Errorf("%v.Err() = %v, want match for unix errno", tt.errno, err)
		}
		if got := ErrnoOf(err); got != tt.errno {
			t.Errorf("ErrnoOf(%v.Err()) = %v", tt.errno, got)
		}
	}

	if OK.Err() != nil {
		t.Errorf("OK.Err() = %v, want nil", OK.Err())
	}
	if !errors.Is(ENOMEM.Err(), unix.ENOMEM) {
		t.Errorf("ENOMEM.Err() = %v", ENOMEM.Err())
	}
}
