package igv

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Java2IGV drives an external JDK to produce IGV XML dumps from Java source:
// javac compiles the class, then the JVM runs it with -XX:+PrintIdeal and a
// graph file target. A debug or fastdebug JDK build is required for the
// dump; product builds are detected and warned about.
type Java2IGV struct {
	logger *slog.Logger
}

func NewJava2IGV(logger *slog.Logger) *Java2IGV {
	if logger == nil {
		logger = slog.Default()
	}
	return &Java2IGV{logger: logger}
}

func javaBin() string {
	if env := os.Getenv("JAVA_BIN"); env != "" {
		return env
	}
	return "java"
}

func javacBin() string {
	if env := os.Getenv("JAVAC_BIN"); env != "" {
		return env
	}
	return "javac"
}

// DumpIGV compiles javaFile and dumps the ideal graph of className::method
// to outputFile.
func (j *Java2IGV) DumpIGV(javaFile, outputFile, method string) error {
	if _, err := os.Stat(javaFile); err != nil {
		return fmt.Errorf("java file not found: %s", javaFile)
	}

	className := strings.TrimSuffix(filepath.Base(javaFile), filepath.Ext(javaFile))
	javaDir := filepath.Dir(javaFile)

	j.logger.Info("compiling java source", "source", javaFile, "class", className, "method", method, "output", outputFile)

	compile := exec.Command(javacBin(), filepath.Base(javaFile))
	compile.Dir = javaDir
	if out, err := compile.CombinedOutput(); err != nil {
		return fmt.Errorf("javac failed: %w\n%s", err, out)
	}

	// Probe for PrintIdeal support; product JVMs reject the flag.
	probe := exec.Command(javaBin(), "-XX:+UnlockDiagnosticVMOptions", "-XX:+PrintIdeal", "-version")
	if out, err := probe.CombinedOutput(); err != nil || strings.Contains(string(out), "notproduct") {
		j.logger.Warn("JVM may lack PrintIdeal support; a debug JDK build is required for IGV output")
	}

	tempIGV := className + "_igv.xml"
	run := exec.Command(javaBin(),
		"-Xcomp",
		"-XX:+UnlockDiagnosticVMOptions",
		"-XX:+PrintIdeal",
		"-XX:PrintIdealGraphLevel=2",
		"-XX:PrintIdealGraphFile="+tempIGV,
		"-XX:CompileCommand=compileonly,"+className+"::"+method,
		"-XX:-TieredCompilation",
		"-XX:-UseOnStackReplacement",
		"-XX:-BackgroundCompilation",
		"-XX:+PrintCompilation",
		className,
	)
	run.Dir = javaDir
	out, runErr := run.CombinedOutput()

	tempPath := filepath.Join(javaDir, tempIGV)
	if _, err := os.Stat(tempPath); err != nil {
		if runErr != nil {
			j.logger.Error("JVM execution failed", "error", runErr)
		}
		return fmt.Errorf("IGV XML not generated (method may not have compiled):\n%s", out)
	}

	if dir := filepath.Dir(outputFile); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	data, err := os.ReadFile(tempPath)
	if err != nil {
		return fmt.Errorf("failed to read generated IGV file: %w", err)
	}
	if err := os.WriteFile(outputFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write IGV output: %w", err)
	}
	if err := os.Remove(tempPath); err != nil {
		j.logger.Warn("failed to remove temporary IGV file", "path", tempPath, "error", err)
	}

	j.logger.Info("IGV graph written", "output", outputFile)
	return nil
}
