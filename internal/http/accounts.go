package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/service"
)

// @Summary Register
// @Tags auth
// @Accept json
// @Produce json
// @Param input body service.RegisterInput true "Account"
// @Success 201 {object} service.Session
// @Failure 400 {object} envelope
// @Failure 409 {object} envelope
// @Router /auth/register [post]
func (s *Server) register(c *gin.Context) {
	var in service.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.reject(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	sess, err := s.auth.Register(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err, "User", "register user")
		return
	}
	respond(c, http.StatusCreated, sess, "User registered successfully")
}

// @Summary Login
// @Tags auth
// @Accept json
// @Produce json
// @Param input body service.LoginInput true "Credentials"
// @Success 200 {object} service.Session
// @Failure 401 {object} envelope
// @Router /auth/login [post]
func (s *Server) login(c *gin.Context) {
	var in service.LoginInput
	if err := c.ShouldBindJSON(&in); err != nil {
		s.reject(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	sess, err := s.auth.Login(c.Request.Context(), in)
	if err != nil {
		s.fail(c, err, "User", "log in")
		return
	}
	respond(c, http.StatusOK, sess, "Login successful")
}

// @Summary Current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} domain.User
// @Failure 401 {object} envelope
// @Router /auth/profile [get]
func (s *Server) profile(c *gin.Context) {
	respond(c, http.StatusOK, gin.H{"user": currentUser(c)}, "")
}

// @Summary Update profile
// @Tags auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param input body service.ProfileUpdate true "Fields to change"
// @Success 200 {object} domain.User
// @Failure 400 {object} envelope
// @Router /auth/profile [put]
func (s *Server) updateProfile(c *gin.Context) {
	var upd service.ProfileUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		s.reject(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	u, err := s.auth.UpdateProfile(c.Request.Context(), currentUser(c).ID, upd)
	if err != nil {
		s.fail(c, err, "User", "update profile")
		return
	}
	respond(c, http.StatusOK, gin.H{"user": u}, "Profile updated successfully")
}
