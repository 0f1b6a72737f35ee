package api

import (
	"github.com/gin-gonic/gin"
)

// AddAdminRequest registers a new administrator
type AddAdminRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required,min=8"`
}

// AddTraderRequest registers a trader under an admin
type AddTraderRequest struct {
	Admin    string `json:"admin" binding:"required"`
	Username string `json:"username" binding:"required"`
}

// AddClientRequest registers a client under a trader
type AddClientRequest struct {
	Trader   string `json:"trader" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// MoveClientRequest reassigns a client to another trader
type MoveClientRequest struct {
	Trader string `json:"trader" binding:"required"`
}

// @Summary Hierarchy overview
// @Description Return admins with their traders and clients
// @Tags Hierarchy
// @Produce json
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Router /admin/hierarchy [get]
func (s *Server) getHierarchy(c *gin.Context) {
	nodes, err := s.tree.Tree(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nodes)
}

// @Summary Add administrator
// @Tags Hierarchy
// @Accept json
// @Produce json
// @Param request body AddAdminRequest true "Admin"
// @Success 200 {object} Response
// @Failure 409 {object} Response
// @Router /admin/admins [post]
func (s *Server) addAdmin(c *gin.Context) {
	var req AddAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	sess := currentSession(c)
	admin, err := s.tree.AddAdmin(c.Request.Context(), sess.Identity, req.Username, req.Email, req.Password, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, admin)
}

// @Summary Remove administrator
// @Description Remove an admin and everything under them
// @Tags Hierarchy
// @Produce json
// @Param username path string true "Admin username"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /admin/admins/{username} [delete]
func (s *Server) removeAdmin(c *gin.Context) {
	sess := currentSession(c)
	if err := s.tree.RemoveAdmin(c.Request.Context(), sess.Identity, c.Param("username"), c.ClientIP()); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// @Summary Add trader
// @Tags Hierarchy
// @Accept json
// @Produce json
// @Param request body AddTraderRequest true "Trader"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Failure 409 {object} Response
// @Router /admin/traders [post]
func (s *Server) addTrader(c *gin.Context) {
	var req AddTraderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	sess := currentSession(c)
	trader, err := s.tree.AddTrader(c.Request.Context(), sess.Identity, req.Admin, req.Username, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, trader)
}

// @Summary Remove trader
// @Description Remove a trader, their clients and revoke their keys
// @Tags Hierarchy
// @Produce json
// @Param username path string true "Trader username"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /admin/traders/{username} [delete]
func (s *Server) removeTrader(c *gin.Context) {
	sess := currentSession(c)
	if err := s.tree.RemoveTrader(c.Request.Context(), sess.Identity, c.Param("username"), c.ClientIP()); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// @Summary Add client
// @Tags Hierarchy
// @Accept json
// @Produce json
// @Param request body AddClientRequest true "Client"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Failure 409 {object} Response
// @Router /admin/clients [post]
func (s *Server) addClient(c *gin.Context) {
	var req AddClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	sess := currentSession(c)
	client, err := s.tree.AddClient(c.Request.Context(), sess.Identity, req.Trader, req.Name, req.Email, req.Password, c.ClientIP())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, client)
}

// @Summary Remove client
// @Tags Hierarchy
// @Produce json
// @Param id path string true "Client ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /admin/clients/{id} [delete]
func (s *Server) removeClient(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	sess := currentSession(c)
	if err := s.tree.RemoveClient(ctx, sess.Identity, id, c.ClientIP()); err != nil {
		respondError(c, err)
		return
	}
	// stored dashboard data goes with the client
	if err := s.data.Purge(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}

// @Summary Move client
// @Description Reassign a client to a different trader
// @Tags Hierarchy
// @Accept json
// @Produce json
// @Param id path string true "Client ID"
// @Param request body MoveClientRequest true "Target trader"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /admin/clients/{id}/move [post]
func (s *Server) moveClient(c *gin.Context) {
	var req MoveClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	sess := currentSession(c)
	if err := s.tree.MoveClient(c.Request.Context(), sess.Identity, c.Param("id"), req.Trader, c.ClientIP()); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, nil)
}
