package logger

import "go.uber.org/zap"

// Campos estándar del dominio. Mantener los nombres estables: dashboards y
// alertas filtran por estas keys.

// Realm crea un campo para el slug del realm.
func Realm(v string) zap.Field { return zap.String("realm", v) }

// Provider crea un campo para el providerId.
func Provider(v string) zap.Field { return zap.String("provider", v) }

// Authority crea un campo para el authorityId.
func Authority(v string) zap.Field { return zap.String("authority", v) }

// ProviderType crea un campo para la familia (identity | attribute).
func ProviderType(v string) zap.Field { return zap.String("type", v) }

// Phase crea un campo para la fase de bootstrap.
func Phase(v string) zap.Field { return zap.String("phase", v) }

// Subject crea un campo para el subject de una cuenta.
func Subject(v string) zap.Field { return zap.String("subject", v) }

// ClientID crea un campo para el clientId.
func ClientID(v string) zap.Field { return zap.String("client_id", v) }

// Op crea un campo para la operación actual.
func Op(v string) zap.Field { return zap.String("op", v) }

// Count crea un campo para un conteo.
func Count(v int) zap.Field { return zap.Int("count", v) }

// Email crea un campo para un email (enmascarado por el caller).
func Email(v string) zap.Field { return zap.String("email", v) }

// Err crea un campo para un error.
func Err(err error) zap.Field { return zap.Error(err) }
