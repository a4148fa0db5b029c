// Package logger expone un zap.Logger singleton con scoping por contexto.
//
// Init se llama una vez desde cmd/jwkgate; el resto del código usa From(ctx)
// para obtener el logger del request (request_id, method, path) o el global
// si no hay uno inyectado.
//
//	log := logger.From(ctx).With(logger.Component("keystore"))
//	log.Info("signing key rotated", logger.KID(kid))
package logger
