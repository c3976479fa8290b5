package model

import "testing"

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"student":    RoleStudent,
		"Instructor": RoleInstructor,
		" ADMIN ":    RoleAdmin,
		"":           RoleNone,
		"superuser":  RoleNone,
	}
	for input, expect := range cases {
		if role := ParseRole(input); role != expect {
			t.Fatalf("ParseRole(%q) = %q, expected %q", input, role, expect)
		}
	}
}
