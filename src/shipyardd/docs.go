// Package main Shipyard API
//
// @title           Shipyard API
// @version         1.0
// @description     Hackathon project submission API - Upload, build, scan and deploy project versions.
//
// @host            localhost:8080
// @BasePath        /
// @schemes         https http
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Bearer token authentication. Prefix the token with "Bearer ".
package main
