package reqparse

import (
	"strconv"
	"unicode"
	"unicode/utf8"
)

// Type is the type of a lexed item.
//
type Type int

// Tokens
const (
	EOF Type = iota
	Raw
	Ident
	Comma
	Int
	// ContiguousInt is an integer immediately followed by 'c'.
	ContiguousInt
	Equal
)

var typeNames = [...]string{"end of input", "character", "identifier", "','", "integer", "contiguous size", "'='"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Type(" + strconv.Itoa(int(t)) + ")"
}

// Item is a lexed item. Value is a string for Ident, an int for Int and
// ContiguousInt and a rune for Raw.
//
type Item struct {
	Type  Type
	Pos   int
	Value interface{}
}

func (i Item) String() string {
	switch v := i.Value.(type) {
	case string:
		return i.Type.String() + " " + strconv.Quote(v)
	case int:
		return i.Type.String() + " " + strconv.Itoa(v)
	case rune:
		return i.Type.String() + " " + strconv.QuoteRune(v)
	}
	return i.Type.String()
}

// stateFn lexes from the current position and returns the next state, nil
// to restart from lexInit.
//
type stateFn func(l *lexer) stateFn

type lexer struct {
	input string
	pos   int // next rune
	start int // start of current rune
	width int
	cur   rune
	items []Item
	state stateFn
}

const eof = -1

// newLexer returns a lexer for request descriptions.
//
func newLexer(input string) *lexer {
	return &lexer{input: input, state: lexInit}
}

func (l *lexer) next() rune {
	if l.pos >= len(l.input) {
		l.width = 0
		l.start = l.pos
		l.cur = eof
		return eof
	}
	r, w := utf8.DecodeRuneInString(l.input[l.pos:])
	l.start, l.width, l.cur = l.pos, w, r
	l.pos += w
	return r
}

func (l *lexer) backup() {
	l.pos -= l.width
	l.width = 0
}

func (l *lexer) acceptWhile(f func(rune) bool) {
	for f(l.next()) {
	}
	l.backup()
}

func (l *lexer) emit(t Type, pos int, v interface{}) {
	l.items = append(l.items, Item{t, pos, v})
}

// lex returns the next item. After the end of input, it only returns EOF.
//
func (l *lexer) lex() Item {
	for len(l.items) == 0 {
		if s := l.state(l); s != nil {
			l.state = s
		} else {
			l.state = lexInit
		}
	}
	i := l.items[0]
	l.items = l.items[1:]
	return i
}

func lexInit(l *lexer) stateFn {
	r := l.next()
	switch {
	case r == eof:
		return lexEOF
	case unicode.IsSpace(r):
		l.acceptWhile(unicode.IsSpace)
	case unicode.IsLetter(r) || r == '_':
		return lexIdent
	case '0' <= r && r <= '9':
		return lexNumber
	case r == ',':
		l.emit(Comma, l.start, ",")
	case r == '=':
		l.emit(Equal, l.start, "=")
	default:
		l.emit(Raw, l.start, r)
		return lexEOF
	}
	return nil
}

func lexNumber(l *lexer) stateFn {
	pos := l.start
	i := int(l.cur - '0')
	r := l.next()
	for '0' <= r && r <= '9' {
		i = i*10 + int(r-'0')
		r = l.next()
	}
	if r == 'c' {
		l.emit(ContiguousInt, pos, i)
		return nil
	}
	l.backup()
	l.emit(Int, pos, i)
	return nil
}

func lexIdent(l *lexer) stateFn {
	pos := l.start
	r := l.next()
	for unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
		r = l.next()
	}
	l.backup()
	l.emit(Ident, pos, l.input[pos:l.pos])
	return nil
}

// lexEOF places the lexer in End-Of-File state.
//
func lexEOF(l *lexer) stateFn {
	l.emit(EOF, len(l.input), nil)
	return lexEOF
}
