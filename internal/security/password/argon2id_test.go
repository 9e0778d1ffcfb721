package password

import (
	"strings"
	"testing"
)

func TestHashVerifyRoundTrip(t *testing.T) {
	phc, err := Hash(Default, "hunter2!")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(phc, "$argon2id$") {
		t.Fatalf("formato PHC inesperado: %q", phc)
	}
	if !Verify("hunter2!", phc) {
		t.Fatal("Verify rechazó el password correcto")
	}
	if Verify("otro", phc) {
		t.Fatal("Verify aceptó un password incorrecto")
	}
}

func TestHashEmptyPassword(t *testing.T) {
	if _, err := Hash(Default, ""); err == nil {
		t.Fatal("quería error con password vacío")
	}
}

func TestVerifyGarbage(t *testing.T) {
	if Verify("x", "no-es-phc") {
		t.Fatal("Verify aceptó un hash malformado")
	}
	if Verify("x", "$argon2id$v=19$m=65536,t=3,p=1$salt$") {
		t.Fatal("Verify aceptó un hash truncado")
	}
}

func TestHashSaltVaries(t *testing.T) {
	a, _ := Hash(Default, "same")
	b, _ := Hash(Default, "same")
	if a == b {
		t.Fatal("dos hashes del mismo password no pueden compartir salt")
	}
}
