package hash

import (
	"encoding/binary"
	"math"

	"github.com/chazu/jsvm/compiler"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of a syntax tree.
//
// Encoding conventions:
//   - First byte: HashVersion (0x01)
//   - Integers: big-endian fixed-width (int32/uint32=4B)
//   - Floats: IEEE 754 big-endian 8B
//   - Strings: uint32 big-endian length + UTF-8 bytes
//   - Booleans: single byte (0/1)
//   - Operators: their source text, as a string
//   - Child nodes: serialized inline (flat); an absent child is TagAbsent
//   - Lists: uint32 count followed by the items
// ---------------------------------------------------------------------------

// Serialize produces a deterministic byte serialization of the tree under
// node. The returned bytes are suitable for hashing with SHA-256.
func Serialize(node compiler.Node) []byte {
	s := &serializer{buf: make([]byte, 0, 256)}
	s.writeByte(HashVersion)
	s.serializeNode(node)
	return s.buf
}

type serializer struct {
	buf []byte
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeFloat64(v float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeBool(v bool) {
	if v {
		s.writeByte(1)
	} else {
		s.writeByte(0)
	}
}

func (s *serializer) writeNodes(nodes []compiler.Node) {
	s.writeUint32(uint32(len(nodes)))
	for _, n := range nodes {
		s.serializeNode(n)
	}
}

func (s *serializer) writeList(l *compiler.AstNodeList) {
	if l == nil {
		s.writeUint32(0)
		return
	}
	s.writeNodes(l.Items)
}

func (s *serializer) serializeNode(node compiler.Node) {
	switch n := node.(type) {
	case nil:
		s.writeByte(TagAbsent)

	case *compiler.Identifier:
		if n == nil {
			s.writeByte(TagAbsent)
			return
		}
		s.writeByte(TagIdentifier)
		s.writeString(n.Text())

	case *compiler.Literal:
		s.serializeLiteral(n.Value)

	case *compiler.ArrayLiteral:
		s.writeByte(TagArrayLiteral)
		s.writeList(n.Elements)

	case *compiler.ObjectExpression:
		s.writeByte(TagObject)
		s.writeList(n.Properties)

	case *compiler.Property:
		s.writeByte(TagProperty)
		s.writeBool(n.Computed)
		s.serializeNode(n.Key)
		s.serializeNode(n.Value)

	case *compiler.Getter:
		s.writeByte(TagGetter)
		s.serializeNode(n.Key)
		s.serializeNode(n.Body)

	case *compiler.Setter:
		s.writeByte(TagSetter)
		s.serializeNode(n.Key)
		s.serializeNode(n.Param)
		s.serializeNode(n.Body)

	case *compiler.ThisExpression:
		s.writeByte(TagThis)

	case *compiler.MetaProperty:
		s.writeByte(TagMeta)
		s.writeString(n.Meta)
		s.writeString(n.Property)

	case *compiler.BinaryExpression:
		s.writeByte(TagBinary)
		s.writeString(n.Op.String())
		s.serializeNode(n.Left)
		s.serializeNode(n.Right)

	case *compiler.UnaryExpression:
		s.writeByte(TagUnary)
		s.writeString(n.Op.String())
		s.serializeNode(n.Operand)

	case *compiler.TernaryExpression:
		s.writeByte(TagTernary)
		s.serializeNode(n.Test)
		s.serializeNode(n.Consequent)
		s.serializeNode(n.Alternate)

	case *compiler.MemberExpression:
		s.writeByte(TagMember)
		s.writeBool(n.Computed)
		s.writeBool(n.Optional)
		s.serializeNode(n.Object)
		s.serializeNode(n.Property)

	case *compiler.CallExpression:
		s.writeByte(TagCall)
		s.serializeNode(n.Callee)
		s.writeList(n.Arguments)

	case *compiler.NewExpression:
		s.writeByte(TagNew)
		s.serializeNode(n.Callee)
		s.writeList(n.Arguments)

	case *compiler.SequenceExpression:
		s.writeByte(TagSequence)
		s.writeNodes(n.Expressions)

	case *compiler.FunctionExpression:
		s.writeByte(TagFunction)
		s.writeBool(n.Generator)
		s.serializeNode(n.Name)
		s.writeList(n.Params)
		s.serializeNode(n.Body)

	case *compiler.BlockStatement:
		if n == nil {
			s.writeByte(TagAbsent)
			return
		}
		s.writeByte(TagBlock)
		s.writeList(n.Body)

	case *compiler.IfStatement:
		s.writeByte(TagIf)
		s.serializeNode(n.Test)
		s.serializeNode(n.Consequent)
		s.serializeNode(n.Alternate)

	case *compiler.ForLoopStatement:
		s.writeByte(TagFor)
		s.serializeNode(n.Init)
		s.serializeNode(n.Test)
		s.serializeNode(n.Update)
		s.serializeNode(n.Body)

	case *compiler.WhileStatement:
		s.writeByte(TagWhile)
		s.serializeNode(n.Test)
		s.serializeNode(n.Body)

	case *compiler.VariableDeclaration:
		s.writeByte(TagDeclaration)
		s.writeString(n.DeclKind.String())
		s.serializeNode(n.Target)
		s.serializeNode(n.Init)

	case *compiler.ReturnStatement:
		s.writeByte(TagReturn)
		s.serializeNode(n.Argument)

	case *compiler.BreakStatement:
		s.writeByte(TagBreak)
		s.serializeNode(n.Label)

	case *compiler.ContinueStatement:
		s.writeByte(TagContinue)
		s.serializeNode(n.Label)

	case *compiler.LabelledStatement:
		s.writeByte(TagLabelled)
		s.serializeNode(n.Label)
		s.serializeNode(n.Body)

	case *compiler.FunctionDeclaration:
		s.writeByte(TagFunctionDeclaration)
		s.writeBool(n.Generator)
		s.serializeNode(n.Name)
		s.writeList(n.Params)
		s.serializeNode(n.Body)

	case *compiler.ExpressionStatement:
		s.writeByte(TagExprStmt)
		s.serializeNode(n.Expression)

	case *compiler.EmptyStatement:
		s.writeByte(TagEmpty)

	case *compiler.AstNodeList:
		if n == nil {
			s.writeByte(TagAbsent)
			return
		}
		s.writeByte(TagList)
		s.writeNodes(n.Items)

	case *compiler.Program:
		s.writeByte(TagProgram)
		s.writeNodes(n.Body)
	}
}

func (s *serializer) serializeLiteral(v compiler.LiteralValue) {
	switch v := v.(type) {
	case compiler.LitString:
		s.writeByte(TagStringLiteral)
		s.writeString(v.Value.String())
	case compiler.LitInteger:
		s.writeByte(TagIntegerLiteral)
		s.writeUint32(uint32(int32(v)))
	case compiler.LitUnsigned:
		s.writeByte(TagUnsignedLiteral)
		s.writeUint32(uint32(v))
	case compiler.LitFloat:
		s.writeByte(TagFloatLiteral)
		s.writeFloat64(float64(v))
	case compiler.LitBoolean:
		s.writeByte(TagBooleanLiteral)
		s.writeBool(bool(v))
	case compiler.LitNull:
		s.writeByte(TagNullLiteral)
	case compiler.LitUndefined:
		s.writeByte(TagUndefinedLiteral)
	}
}
