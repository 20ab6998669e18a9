package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestCheckID(t *testing.T) {
	out, err := execute(t, "checkid", "11.222.333/0001-81", "06990590000123")
	require.NoError(t, err)
	assert.Contains(t, out, "11.222.333/0001-81   valid")
	assert.Contains(t, out, "06990590000123       valid")

	out, err = execute(t, "checkid", "11222333000181", "12345678000199")
	require.Error(t, err)
	assert.Contains(t, out, "12345678000199       invalid")
	assert.Contains(t, err.Error(), "1 of 2")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version:    "+Version)
}

func TestRunCommand(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "input")
	registry := filepath.Join(input, "registry", "Relatorio_cadop.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(registry), 0755))
	require.NoError(t, os.WriteFile(registry, []byte(
		"REGISTRO_OPERADORA;CNPJ;Razao_Social;UF;Modalidade\n"+
			"111111;11222333000181;OPERADORA A;SP;Cooperativa Médica\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(input, "1T2024.csv"), []byte(
		"DATA;REG_ANS;CD_CONTA_CONTABIL;DESCRICAO;VL_SALDO_FINAL\n"+
			"2024-01-01;111111;411;EVENTOS;300\n"), 0644))

	cfgPath := filepath.Join(root, "ansetl.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"paths:\n"+
			"  input_dir: "+input+"\n"+
			"  output_dir: "+filepath.Join(root, "output")+"\n"+
			"  archive_dir: "+filepath.Join(root, "archive")+"\n"+
			"  registry_file: "+registry+"\n"+
			"logging:\n"+
			"  output: file\n"+
			"  file_path: "+filepath.Join(root, "logs", "ansetl.log")+"\n"), 0644))

	out, err := execute(t, "run", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Accepted:        1")
	assert.Contains(t, out, "Top spender:     111111 OPERADORA A (300.00)")
	assert.FileExists(t, filepath.Join(root, "output", "aggregated_expenses.csv"))

	out, err = execute(t, "aggregate", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Operators:       1")
}

func TestRunCommand_MissingConfig(t *testing.T) {
	_, err := execute(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load main config")
}
