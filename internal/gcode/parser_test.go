package gcode

import "testing"

func TestParseLineBasic(t *testing.T) {
	p := NewParser("test.gcode")
	gc, err := p.ParseLine(1, "G1 X10 Y-5.5 F1500")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if gc.Letter != 'G' || gc.Number != 1 {
		t.Fatalf("got letter=%c number=%d", gc.Letter, gc.Number)
	}
	want := map[byte]float64{'X': 10, 'Y': -5.5, 'F': 1500}
	if len(gc.Args) != len(want) {
		t.Fatalf("args = %+v, want %+v", gc.Args, want)
	}
	for _, a := range gc.Args {
		if want[a.Letter] != a.Value {
			t.Errorf("arg %c = %v, want %v", a.Letter, a.Value, want[a.Letter])
		}
	}
}

func TestParseLineMinorNumber(t *testing.T) {
	p := NewParser("test.gcode")
	gc, err := p.ParseLine(1, "M104.1 S200")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if gc.Number != 104 || gc.Minor != 1 {
		t.Fatalf("got number=%d minor=%d", gc.Number, gc.Minor)
	}
}

func TestParseLineCommentOnly(t *testing.T) {
	p := NewParser("test.gcode")
	gc, err := p.ParseLine(1, "; just a comment")
	if err != nil || gc != nil {
		t.Fatalf("got gc=%v err=%v, want nil, nil", gc, err)
	}
}

func TestParseLineBlank(t *testing.T) {
	p := NewParser("test.gcode")
	gc, err := p.ParseLine(1, "   ")
	if err != nil || gc != nil {
		t.Fatalf("got gc=%v err=%v, want nil, nil", gc, err)
	}
}

func TestParseLineUnknownContent(t *testing.T) {
	p := NewParser("test.gcode")
	_, err := p.ParseLine(3, "G1 @ X10")
	pe, ok := err.(*ParsingError)
	if !ok {
		t.Fatalf("err = %v, want *ParsingError", err)
	}
	if pe.Kind != UnknownContent || pe.Span.Line != 3 {
		t.Fatalf("got %+v", pe)
	}
}

func TestParseLineNumberWithoutLetter(t *testing.T) {
	p := NewParser("test.gcode")
	_, err := p.ParseLine(1, "123")
	pe, ok := err.(*ParsingError)
	if !ok || pe.Kind != NumberWithoutLetter {
		t.Fatalf("err = %v, want NumberWithoutLetter", err)
	}
}

func TestParseLineLetterWithoutNumber(t *testing.T) {
	p := NewParser("test.gcode")
	_, err := p.ParseLine(1, "G1 X")
	pe, ok := err.(*ParsingError)
	if !ok || pe.Kind != LetterWithoutNumber {
		t.Fatalf("err = %v, want LetterWithoutNumber", err)
	}
}

func TestParseLineArgumentWithoutCommand(t *testing.T) {
	p := NewParser("test.gcode")
	_, err := p.ParseLine(1, "X10 G1")
	pe, ok := err.(*ParsingError)
	if !ok || pe.Kind != ArgumentWithoutCommand {
		t.Fatalf("err = %v, want ArgumentWithoutCommand", err)
	}
}

func TestParseLineUnexpectedLineNumber(t *testing.T) {
	p := NewParser("test.gcode")
	_, err := p.ParseLine(1, "G1 X10 N5")
	pe, ok := err.(*ParsingError)
	if !ok || pe.Kind != UnexpectedLineNumber {
		t.Fatalf("err = %v, want UnexpectedLineNumber", err)
	}
}
