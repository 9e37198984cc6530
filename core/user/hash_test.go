package user

import (
	"strings"
	"testing"
)

func TestHashPassword(t *testing.T) {
	hash, err := hashPassword("S3cretPwd!")
	if err != nil {
		t.Fatalf("hashPassword() failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=4$") {
		t.Errorf("hashPassword() = %q; want argon2id PHC encoding", hash)
	}

	// a fresh hash of the same password must differ (random salt)
	hash2, err := hashPassword("S3cretPwd!")
	if err != nil {
		t.Fatalf("hashPassword() failed: %v", err)
	}
	if hash == hash2 {
		t.Error("hashPassword() produced identical hashes for the same password")
	}
}

func TestVerifyPassword(t *testing.T) {
	hash, err := hashPassword("S3cretPwd!")
	if err != nil {
		t.Fatalf("hashPassword() failed: %v", err)
	}

	tests := []struct {
		name    string
		encoded string
		pwd     string
		wantErr bool
	}{
		{name: "correct password", encoded: hash, pwd: "S3cretPwd!"},
		{name: "wrong password", encoded: hash, pwd: "S3cretPwd", wantErr: true},
		{name: "empty password", encoded: hash, pwd: "", wantErr: true},
		{name: "not a PHC string", encoded: "lmaooolol", pwd: "S3cretPwd!", wantErr: true},
		{name: "wrong algorithm", encoded: "$argon2i$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA", pwd: "S3cretPwd!", wantErr: true},
		{name: "empty hash", encoded: "", pwd: "S3cretPwd!", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifyPassword(tt.encoded, tt.pwd)
			if (err != nil) != tt.wantErr {
				t.Errorf("verifyPassword() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUserSetCheckPassword(t *testing.T) {
	var usr User
	if err := usr.SetPassword("S3cretPwd!"); err != nil {
		t.Fatalf("SetPassword() failed: %v", err)
	}
	if usr.PasswordChangedAt.IsZero() {
		t.Error("SetPassword() did not set PasswordChangedAt")
	}
	if err := usr.CheckPassword("S3cretPwd!"); err != nil {
		t.Errorf("CheckPassword() error = %v", err)
	}
	if err := usr.CheckPassword("nope"); err == nil {
		t.Error("CheckPassword() accepted a wrong password")
	}
}
