package compiler

import (
	"bytes"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// AST rendering
// ---------------------------------------------------------------------------

// DumpYAML renders the tree under n as YAML: one mapping per node with a
// "type" key followed by node-specific children in source order.
func DumpYAML(n Node) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(ToYAMLNode(n)); err != nil {
		return "", fmt.Errorf("astdump: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("astdump: encoder close: %w", err)
	}
	return buf.String(), nil
}

// ToYAMLNode converts the tree under n into an ordered YAML document node.
func ToYAMLNode(n Node) *yaml.Node {
	if isNil(n) {
		return scalar("!!null", "null")
	}
	m := &mapping{node: &yaml.Node{Kind: yaml.MappingNode}}
	m.str("type", n.Kind().String())

	switch n := n.(type) {
	case *Identifier:
		m.str("name", n.Text())
	case *Literal:
		literalFields(m, n.Value)
	case *ArrayLiteral:
		m.list("elements", n.Elements)
	case *ObjectExpression:
		m.list("properties", n.Properties)
	case *Property:
		m.child("key", n.Key)
		m.child("value", n.Value)
		if n.Computed {
			m.boolean("computed", true)
		}
	case *Getter:
		m.child("key", n.Key)
		m.child("body", n.Body)
	case *Setter:
		m.child("key", n.Key)
		m.child("param", n.Param)
		m.child("body", n.Body)
	case *BinaryExpression:
		m.str("operator", n.Op.String())
		m.child("left", n.Left)
		m.child("right", n.Right)
	case *UnaryExpression:
		m.str("operator", n.Op.String())
		m.child("operand", n.Operand)
	case *TernaryExpression:
		m.child("test", n.Test)
		m.child("consequent", n.Consequent)
		m.child("alternate", n.Alternate)
	case *MemberExpression:
		m.child("object", n.Object)
		m.child("property", n.Property)
		if n.Computed {
			m.boolean("computed", true)
		}
		if n.Optional {
			m.boolean("optional", true)
		}
	case *CallExpression:
		m.child("callee", n.Callee)
		m.list("arguments", n.Arguments)
	case *NewExpression:
		m.child("callee", n.Callee)
		m.list("arguments", n.Arguments)
	case *MetaProperty:
		m.str("meta", n.Meta)
		m.str("property", n.Property)
	case *SequenceExpression:
		m.nodes("expressions", n.Expressions)
	case *FunctionExpression:
		if n.Name != nil {
			m.child("name", n.Name)
		}
		m.list("params", n.Params)
		m.child("body", n.Body)
	case *BlockStatement:
		m.list("body", n.Body)
	case *IfStatement:
		m.child("test", n.Test)
		m.child("consequent", n.Consequent)
		if n.Alternate != nil {
			m.child("alternate", n.Alternate)
		}
	case *ForLoopStatement:
		m.child("init", n.Init)
		m.child("test", n.Test)
		m.child("update", n.Update)
		m.child("body", n.Body)
	case *WhileStatement:
		m.child("test", n.Test)
		m.child("body", n.Body)
	case *VariableDeclaration:
		m.str("kind", n.DeclKind.String())
		m.child("target", n.Target)
		m.child("init", n.Init)
	case *ReturnStatement:
		m.child("argument", n.Argument)
	case *BreakStatement:
		if n.Label != nil {
			m.child("label", n.Label)
		}
	case *ContinueStatement:
		if n.Label != nil {
			m.child("label", n.Label)
		}
	case *LabelledStatement:
		m.child("label", n.Label)
		m.child("body", n.Body)
	case *FunctionDeclaration:
		m.child("name", n.Name)
		m.list("params", n.Params)
		m.child("body", n.Body)
	case *ExpressionStatement:
		m.child("expression", n.Expression)
	case *AstNodeList:
		m.list("items", n)
	case *Program:
		m.nodes("body", n.Body)
	}
	return m.node
}

func literalFields(m *mapping, v LiteralValue) {
	switch v := v.(type) {
	case LitString:
		m.str("kind", "string")
		m.str("value", v.Value.String())
	case LitInteger:
		m.str("kind", "integer")
		m.put("value", scalar("!!int", strconv.FormatInt(int64(v), 10)))
	case LitUnsigned:
		m.str("kind", "unsigned")
		m.put("value", scalar("!!int", strconv.FormatUint(uint64(v), 10)))
	case LitFloat:
		m.str("kind", "float")
		m.put("value", scalar("!!float", strconv.FormatFloat(float64(v), 'g', -1, 64)))
	case LitBoolean:
		m.str("kind", "boolean")
		m.boolean("value", bool(v))
	case LitNull:
		m.str("kind", "null")
	case LitUndefined:
		m.str("kind", "undefined")
	}
}

type mapping struct {
	node *yaml.Node
}

func (m *mapping) put(key string, value *yaml.Node) {
	m.node.Content = append(m.node.Content, scalar("!!str", key), value)
}

func (m *mapping) str(key, value string) {
	m.put(key, scalar("!!str", value))
}

func (m *mapping) boolean(key string, value bool) {
	m.put(key, scalar("!!bool", strconv.FormatBool(value)))
}

func (m *mapping) child(key string, n Node) {
	m.put(key, ToYAMLNode(n))
}

func (m *mapping) list(key string, l *AstNodeList) {
	if l == nil {
		m.nodes(key, nil)
		return
	}
	m.nodes(key, l.Items)
}

func (m *mapping) nodes(key string, items []Node) {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, item := range items {
		seq.Content = append(seq.Content, ToYAMLNode(item))
	}
	m.put(key, seq)
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}
