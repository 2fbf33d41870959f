package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/halofn/halo/internal/domain"
)

func TestCompile_StripsTypes(t *testing.T) {
	source := `
interface Greeting {
	message: string
}

export function main(ctx: any): Greeting {
	const name: string = ctx.body.name
	return { message: "hello " + name }
}
`
	code, err := Compile(source)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if strings.Contains(code, "interface") {
		t.Errorf("compiled output still contains type declarations:\n%s", code)
	}
	if !strings.Contains(code, "main") {
		t.Errorf("compiled output lost the exported function:\n%s", code)
	}
}

// 编译是纯粹的语法转换，类型不一致的源码也必须编译通过。
func TestCompile_TypePermissive(t *testing.T) {
	source := `
export function main(): number {
	const n: number = "definitely not a number"
	return n
}
`
	if _, err := Compile(source); err != nil {
		t.Errorf("Compile() rejected type-invalid but syntactically valid source: %v", err)
	}
}

func TestCompile_SyntaxError(t *testing.T) {
	_, err := Compile(`export function main( {`)
	if !errors.Is(err, domain.ErrCompileFailed) {
		t.Errorf("Compile() error = %v, want ErrCompileFailed", err)
	}
}

// 同一份源码多次编译必须产出完全相同的结果。
func TestCompile_Deterministic(t *testing.T) {
	source := `
export async function main(ctx: any) {
	return { ok: true, at: Date.now() }
}
`
	first, err := Compile(source)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := Compile(source)
		if err != nil {
			t.Fatalf("Compile() error = %v", err)
		}
		if again != first {
			t.Fatalf("Compile() is not deterministic:\nfirst:\n%s\nagain:\n%s", first, again)
		}
	}
}
