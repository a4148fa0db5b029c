// Package controllers contiene los handlers HTTP de los dos servicios:
// auth (jwks, login, admin de claves) y resource (me y recursos protegidos).
package controllers
