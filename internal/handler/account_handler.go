package handler

import (
	"net/http"

	"smartdoc-go/internal/middleware"
	"smartdoc-go/internal/service"
	"smartdoc-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AccountHandler 处理注册、登录与 token 生命周期。
type AccountHandler struct {
	users service.UserService
}

func NewAccountHandler(users service.UserService) *AccountHandler {
	return &AccountHandler{users: users}
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

func tokenPair(access, refresh string) gin.H {
	return gin.H{"token": access, "refreshToken": refresh, "tokenType": "Bearer"}
}

// Register 创建文档所有者账号，成功返回 201。
func (h *AccountHandler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_user_input", "username 和 password 不能为空")
		return
	}

	user, err := h.users.Register(req.Username, req.Password)
	if err != nil {
		log.Warnf("[AccountHandler] 注册失败, username: %s, error: %v", req.Username, err)
		failWith(c, err)
		return
	}
	respond(c, http.StatusCreated, "注册成功", user)
}

func (h *AccountHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_user_input", "username 和 password 不能为空")
		return
	}

	access, refresh, err := h.users.Login(req.Username, req.Password)
	if err != nil {
		log.Warnf("[AccountHandler] 登录失败, username: %s, error: %v", req.Username, err)
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "登录成功", tokenPair(access, refresh))
}

// Refresh 轮换 token 对，旧 refresh token 作废。
func (h *AccountHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid_user_input", "refreshToken 不能为空")
		return
	}

	access, refresh, err := h.users.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "token 已刷新", tokenPair(access, refresh))
}

func (h *AccountHandler) Me(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	respond(c, http.StatusOK, "success", user)
}

// Logout 吊销当前请求所用的 access token。
func (h *AccountHandler) Logout(c *gin.Context) {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		fail(c, http.StatusUnauthorized, "unauthorized", "未认证")
		return
	}
	if err := h.users.Logout(c.Request.Context(), claims); err != nil {
		log.Errorf("[AccountHandler] 登出失败, username: %s, error: %v", claims.Username, err)
		failWith(c, err)
		return
	}
	respond(c, http.StatusOK, "已登出", nil)
}
