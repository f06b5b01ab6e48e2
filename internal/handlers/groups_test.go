package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/PATILYASHH/SwiftChat/internal/mocks"
	"github.com/PATILYASHH/SwiftChat/internal/models"
	"github.com/PATILYASHH/SwiftChat/internal/repositories"
	"github.com/PATILYASHH/SwiftChat/internal/ws"
)

func setupGroupRouter(handler *GroupHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	r.POST("/groups", handler.CreateGroup)
	r.GET("/groups/me", handler.MyGroups)
	r.GET("/groups/address/:address", handler.GetGroupByAddress)
	r.GET("/groups/:group_id/messages", handler.GetGroupMessages)
	r.POST("/groups/:group_id/leave", handler.LeaveGroup)
	r.DELETE("/groups/:group_id/members/:user_id", handler.RemoveMember)
	return r
}

func TestCreateGroupSuccess(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groupRepo, new(mocks.GroupMessageRepositoryMock), ws.NewSubscriptionTable(), nil)
	router := setupGroupRouter(handler)

	groupRepo.On("CreateGroup", mock.Anything, 1, "friends", "friends-hq").Return(models.Group{ID: 5, Name: "friends", Address: "friends-hq", AdminID: 1}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups", bytes.NewBufferString(`{"name":"friends","address":"friends-hq"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	groupRepo.AssertExpectations(t)
}

func TestCreateGroupAddressTaken(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groupRepo, new(mocks.GroupMessageRepositoryMock), ws.NewSubscriptionTable(), nil)
	router := setupGroupRouter(handler)

	groupRepo.On("CreateGroup", mock.Anything, 1, "friends", "taken").Return(models.Group{}, repositories.ErrAddressTaken).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups", bytes.NewBufferString(`{"name":"friends","address":"taken"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	groupRepo.AssertExpectations(t)
}

func TestCreateGroupInvalidBody(t *testing.T) {
	handler := NewGroupHandler(new(mocks.GroupRepositoryMock), new(mocks.GroupMessageRepositoryMock), ws.NewSubscriptionTable(), nil)
	router := setupGroupRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/groups", bytes.NewBufferString(`{"name":"no address"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetGroupByAddressNotFound(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groupRepo, new(mocks.GroupMessageRepositoryMock), ws.NewSubscriptionTable(), nil)
	router := setupGroupRouter(handler)

	groupRepo.On("GetGroupByAddress", mock.Anything, "nowhere").Return(models.Group{}, repositories.ErrGroupNotFound).Once()

	req := httptest.NewRequest(http.MethodGet, "/groups/address/nowhere", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	groupRepo.AssertExpectations(t)
}

func TestGetGroupByAddressReportsMemberCount(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groupRepo, new(mocks.GroupMessageRepositoryMock), ws.NewSubscriptionTable(), nil)
	router := setupGroupRouter(handler)

	groupRepo.On("GetGroupByAddress", mock.Anything, "g").Return(models.Group{ID: 9, Address: "g"}, nil).Once()
	groupRepo.On("ListMembers", mock.Anything, 9).Return([]models.GroupMember{{UserID: 1}, {UserID: 2}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/groups/address/g", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"memberCount":2`)
	groupRepo.AssertExpectations(t)
}

func TestGetGroupMessagesForbiddenForNonMember(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groupRepo, new(mocks.GroupMessageRepositoryMock), ws.NewSubscriptionTable(), nil)
	router := setupGroupRouter(handler)

	groupRepo.On("IsMember", mock.Anything, 9, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/groups/9/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	groupRepo.AssertExpectations(t)
}

func TestGetGroupMessagesSuccess(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	messageRepo := new(mocks.GroupMessageRepositoryMock)
	handler := NewGroupHandler(groupRepo, messageRepo, ws.NewSubscriptionTable(), nil)
	router := setupGroupRouter(handler)

	groupRepo.On("IsMember", mock.Anything, 9, 1).Return(true, nil).Once()
	messageRepo.On("ListGroupMessages", mock.Anything, 9).Return([]models.GroupMessage{{ID: 1, GroupID: 9}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/groups/9/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	groupRepo.AssertExpectations(t)
	messageRepo.AssertExpectations(t)
}

func TestLeaveGroupAdminRejected(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groupRepo, new(mocks.GroupMessageRepositoryMock), ws.NewSubscriptionTable(), nil)
	router := setupGroupRouter(handler)

	groupRepo.On("GetGroupByID", mock.Anything, 9).Return(models.Group{ID: 9, AdminID: 1}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups/9/leave", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	groupRepo.AssertExpectations(t)
}

func TestLeaveGroupClearsSubscription(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	subs := ws.NewSubscriptionTable()
	subs.Subscribe(9, 1)
	handler := NewGroupHandler(groupRepo, new(mocks.GroupMessageRepositoryMock), subs, nil)
	router := setupGroupRouter(handler)

	groupRepo.On("GetGroupByID", mock.Anything, 9).Return(models.Group{ID: 9, AdminID: 2}, nil).Once()
	groupRepo.On("IsMember", mock.Anything, 9, 1).Return(true, nil).Once()
	groupRepo.On("RemoveMember", mock.Anything, 9, 1).Return(nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/groups/9/leave", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, subs.Members(9))
	groupRepo.AssertExpectations(t)
}

func TestRemoveMemberRequiresAdmin(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	handler := NewGroupHandler(groupRepo, new(mocks.GroupMessageRepositoryMock), ws.NewSubscriptionTable(), nil)
	router := setupGroupRouter(handler)

	groupRepo.On("IsAdmin", mock.Anything, 9, 1).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/groups/9/members/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	groupRepo.AssertExpectations(t)
}

func TestRemoveMemberSuccess(t *testing.T) {
	groupRepo := new(mocks.GroupRepositoryMock)
	subs := ws.NewSubscriptionTable()
	subs.Subscribe(9, 2)
	handler := NewGroupHandler(groupRepo, new(mocks.GroupMessageRepositoryMock), subs, nil)
	router := setupGroupRouter(handler)

	groupRepo.On("IsAdmin", mock.Anything, 9, 1).Return(true, nil).Once()
	groupRepo.On("RemoveMember", mock.Anything, 9, 2).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/groups/9/members/2", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, subs.Members(9))
	groupRepo.AssertExpectations(t)
}
