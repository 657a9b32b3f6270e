package program

import "testing"

func TestParseValidProgram(t *testing.T) {
	src := `DECLARE a 1; ADD a a 1; PRINT(a)`
	instrs, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(instrs) != 3 {
		t.Fatalf("expected 3 instructions, got %d", len(instrs))
	}
	if instrs[0].Op != DECLARE || instrs[0].Operands[0] != "a" || instrs[0].Operands[1] != "1" {
		t.Errorf("unexpected DECLARE: %+v", instrs[0])
	}
	if instrs[1].Op != ADD {
		t.Errorf("unexpected op: %v", instrs[1].Op)
	}
	if instrs[2].Op != PRINT || instrs[2].Operands[0] != "a" {
		t.Errorf("unexpected PRINT: %+v", instrs[2])
	}
}

func TestParsePrintWithSpaces(t *testing.T) {
	instrs, err := Parse(`PRINT("Value: " + a)`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if instrs[0].Operands[0] != `"Value: " + a` {
		t.Errorf("unexpected PRINT arg: %q", instrs[0].Operands[0])
	}
}

func TestParseTrailingSemicolonTolerated(t *testing.T) {
	instrs, err := Parse(`DECLARE a 1;`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(instrs) != 1 {
		t.Fatalf("expected 1 instruction, got %d", len(instrs))
	}
}

func TestParseRejectsTooFewOrTooManyInstructions(t *testing.T) {
	if _, err := Parse(``); err == nil {
		t.Error("expected error for empty program")
	}

	var sb []byte
	for i := 0; i < 51; i++ {
		sb = append(sb, []byte("DECLARE a 1;")...)
	}
	if _, err := Parse(string(sb)); err == nil {
		t.Error("expected error for 51-instruction program")
	}
}

func TestParseRejectsMalformedInstructions(t *testing.T) {
	cases := []string{
		`DECLARE 1a 1`,     // invalid identifier
		`ADD a b`,          // too few args
		`WRITE 123 a`,      // address not 0x-prefixed
		`READ a 0xZZ`,      // non-hex digits after 0x; READ checks ValidAddress
		`FROB a b c`,       // unknown instruction
	}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Errorf("expected error parsing %q", c)
		}
	}
}

func TestValidIdentifier(t *testing.T) {
	valid := []string{"a", "A1"}
	// Identifiers must start with a letter; "_not_valid_start" should be invalid.
	if !ValidIdentifier("a") || !ValidIdentifier("A1") {
		t.Error("expected simple identifiers to be valid")
	}
	if ValidIdentifier("_not_valid_start") {
		t.Error("identifiers may not start with underscore")
	}
	_ = valid
}

func TestValidAddress(t *testing.T) {
	if !ValidAddress("0x10") || !ValidAddress("0XAB") {
		t.Error("expected hex addresses to be valid")
	}
	if ValidAddress("10") || ValidAddress("0x") || ValidAddress("0xZZ") {
		t.Error("expected malformed addresses to be rejected")
	}
}
