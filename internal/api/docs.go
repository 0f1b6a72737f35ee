package api

// @title TradeDash API
// @version 1.0
// @description Credential and access management API for the TradeDash client dashboard

// @host localhost:5001
// @BasePath /api/v1

// @securityDefinitions.apikey SessionAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the session token.

// @securityDefinitions.apikey KeyAuth
// @in header
// @name X-API-Key
// @description Trader push key, shown once at generation.

// @tag.name Auth
// @tag.description Login, logout and password management

// @tag.name Hierarchy
// @tag.description Admin, trader and client management

// @tag.name Keys
// @tag.description API key issuance and revocation

// @tag.name Push
// @tag.description Trader data push endpoints

// @tag.name Audit
// @tag.description Audit trail queries

// @tag.name Dashboard
// @tag.description Client dashboard views
