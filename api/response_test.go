package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/instanthost/publish-server/publishclient/publishapi"
)

func TestStatusForErr(t *testing.T) {
	assert.Equal(t, 404, StatusForErr(publishapi.ErrNotFound))
	assert.Equal(t, 403, StatusForErr(publishapi.ErrPermissionDenied))
	assert.Equal(t, 403, StatusForErr(publishapi.ErrInvalidClaim))
	assert.Equal(t, 400, StatusForErr(publishapi.ErrVersionMismatch))
	assert.Equal(t, 400, StatusForErr(publishapi.ErrInvalidManifest))
	assert.Equal(t, 429, StatusForErr(publishapi.ErrRateLimitExceeded))
	assert.Equal(t, 401, StatusForErr(publishapi.ErrUnauthenticated))
	assert.Equal(t, 502, StatusForErr(publishapi.ErrStorageFailure))
	assert.Equal(t, 500, StatusForErr(errors.New("boom")))
	// wrapped kinds still map
	assert.Equal(t, 400, StatusForErr(fmt.Errorf("%w: bad path", publishapi.ErrInvalidManifest)))
}

func TestWriteErr_MasksInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErr(rec, errors.New("mongo: connection refused"))
	assert.Equal(t, 500, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	WriteErr(rec, publishapi.ErrNotFound)
	assert.Equal(t, 404, rec.Code)
	assert.JSONEq(t, `{"error":"publish not found"}`, rec.Body.String())
}

func TestClientAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:4567"
	assert.Equal(t, "10.0.0.1", ClientAddr(req))

	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	assert.Equal(t, "1.2.3.4", ClientAddr(req))

	req.Header.Set("X-Forwarded-For", "5.6.7.8, 10.0.0.1")
	assert.Equal(t, "5.6.7.8", ClientAddr(req))
}
