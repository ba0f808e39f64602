package rental

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"

	"stefabooks/internal/access"
	"stefabooks/internal/httpx"
	"stefabooks/internal/testutil"
)

func withSubject(r *http.Request, s access.Subject) *http.Request {
	return r.WithContext(httpx.ContextWithSubject(r.Context(), s))
}

var reader = access.Subject{UserID: "u1", Role: access.RoleUser, Status: access.StatusActive}

func TestHTTPHandler_Checkout(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := NewMockRepository(ctrl)
	h := NewHTTPHandler(newTestService(repo, nil))

	repo.EXPECT().Checkout(gomock.Any(), gomock.Any()).Return(Rental{}, ErrOutOfStock)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/rentals", strings.NewReader(`{"book_id":"`+testutil.TestBookID+`"}`))
	h.Checkout(w, withSubject(r, reader))

	res := testutil.RecordHTTPResponse(w)
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, "OUT_OF_STOCK", res.ErrorCode())
}

func TestHTTPHandler_CheckoutRejectsBadBookID(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewHTTPHandler(newTestService(NewMockRepository(ctrl), nil))

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/rentals", strings.NewReader(`{"book_id":"nope"}`))
	h.Checkout(w, withSubject(r, reader))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHTTPHandler_ListMine(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := NewMockRepository(ctrl)
	h := NewHTTPHandler(newTestService(repo, nil))

	repo.EXPECT().ListByUser(gomock.Any(), "u1").Return([]Rental{
		{ID: "r1", UserID: "u1", Status: StatusActive, DueAt: testNow.Add(-time.Hour)},
	}, nil)

	w := httptest.NewRecorder()
	h.ListMine(w, withSubject(httptest.NewRequest(http.MethodGet, "/v1/rentals/me", nil), reader))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"overdue":true`)
}

const rentalUUID = "9a8b7c6d-5e4f-4a3b-8c2d-1e0f9a8b7c6d"

func TestHTTPHandler_Return(t *testing.T) {
	active := Rental{ID: rentalUUID, UserID: "u1", Status: StatusActive, DueAt: testNow.Add(time.Hour)}

	t.Run("moderator may return any rental", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := NewMockRepository(ctrl)
		h := NewHTTPHandler(newTestService(repo, nil))
		repo.EXPECT().GetByID(gomock.Any(), rentalUUID).Return(active, nil)
		repo.EXPECT().Return(gomock.Any(), rentalUUID, testNow).Return(Rental{ID: rentalUUID, UserID: "u1", Status: StatusReturned}, nil)

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/v1/rentals/"+rentalUUID+"/return", nil)
		r.SetPathValue("id", rentalUUID)
		h.Return(w, withSubject(r, access.Subject{UserID: "m1", Role: access.RoleModerator, Status: access.StatusActive}))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("other user", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := NewMockRepository(ctrl)
		h := NewHTTPHandler(newTestService(repo, nil))
		repo.EXPECT().GetByID(gomock.Any(), rentalUUID).Return(active, nil)

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/v1/rentals/"+rentalUUID+"/return", nil)
		r.SetPathValue("id", rentalUUID)
		h.Return(w, withSubject(r, access.Subject{UserID: "u2", Role: access.RoleUser, Status: access.StatusActive}))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		h := NewHTTPHandler(newTestService(NewMockRepository(ctrl), nil))

		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/v1/rentals/abc/return", nil)
		r.SetPathValue("id", "abc")
		h.Return(w, withSubject(r, access.Subject{UserID: "u1", Role: access.RoleUser, Status: access.StatusActive}))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
