package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"anwesha-auth/internal/config"
	"anwesha-auth/internal/db"
	"anwesha-auth/internal/domain"
	"anwesha-auth/internal/email"
	"anwesha-auth/internal/identity"
	"anwesha-auth/internal/notify"
	"anwesha-auth/internal/repository"
	"anwesha-auth/internal/service"
)

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool); err != nil {
			log.Fatalf("migraciones: %v", err)
		}
	}

	dir := identity.NewDirectory(logger, repository.NewPgCredentialRepository(pool), cliSender{}, nil)
	factory := service.NewSessionFactory(service.SessionDeps{
		Logger:      logger,
		NewProvider: func() identity.Provider { return dir.NewClient() },
		Users:       repository.NewUserDocuments(repository.NewPgDocumentStore(pool)),
		InboxSize:   cfg.NotificationInboxSize,
		Options: service.SessionOptions{
			RemoteTimeout:        cfg.RemoteCallTimeout,
			AnweshaIDMaxAttempts: cfg.AnweshaIDMaxAttempts,
		},
	})
	session, err := factory(uuid.NewString())
	if err != nil {
		log.Fatal(err)
	}
	if err := session.Store.Init(ctx); err != nil {
		log.Fatalf("iniciar sesion: %v", err)
	}
	defer session.Store.Dispose()

	readyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	_ = session.Store.WaitReady(readyCtx)
	cancel()

	for {
		printMenu(session)
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		switch strings.TrimSpace(line) {
		case "1":
			emailAddr, password := prompt(reader, "Email"), prompt(reader, "Password")
			user, err := session.Store.RegisterUser(ctx, emailAddr, password)
			report(user, err)
		case "2":
			emailAddr, password := prompt(reader, "Email"), prompt(reader, "Password")
			user, err := session.Store.LoginUser(ctx, emailAddr, password)
			report(user, err)
		case "3":
			finalizeFlow(ctx, reader, session)
		case "4":
			updateFlow(ctx, reader, session)
		case "5":
			verifyFlow(ctx, reader, session, dir)
		case "6":
			whoami(session)
		case "7":
			if err := session.Nav.Logout(ctx); err != nil {
				fmt.Printf("Logout con errores remotos: %v\n", err)
			}
		case "8":
			return
		default:
			fmt.Println("Opcion invalida.")
		}
		printNotifications(session.Inbox.Drain())
	}
}

func printMenu(session *service.Session) {
	menu := session.Nav.Menu("/")
	fmt.Printf("\n===== Anwesha [%s] =====\n", menu.Account.Label)
	if menu.Badge != nil {
		fmt.Printf("%s %s\n", menu.Badge.FullName, menu.Badge.AnweshaID)
	}
	fmt.Println("[1] Registrarse")
	fmt.Println("[2] Login")
	fmt.Println("[3] Finalizar registro")
	fmt.Println("[4] Actualizar perfil (campo=valor)")
	fmt.Println("[5] Verificar email")
	fmt.Println("[6] Quien soy")
	fmt.Println("[7] Logout")
	fmt.Println("[8] Salir")
	fmt.Print("Selecciona una opcion: ")
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Printf("%s: ", label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func report(user *domain.UserRecord, err error) {
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	if user == nil {
		fmt.Println("Sin usuario.")
		return
	}
	printUser(user)
}

func printUser(user *domain.UserRecord) {
	data, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func whoami(session *service.Session) {
	user := session.Store.CurrentUser()
	if user == nil {
		fmt.Println("Sesion anonima.")
		return
	}
	printUser(user)
}

func finalizeFlow(ctx context.Context, reader *bufio.Reader, session *service.Session) {
	user := session.Store.CurrentUser()
	if user == nil {
		fmt.Println("Primero registrate o inicia sesion.")
		return
	}
	fields := domain.Fields{}
	if name := prompt(reader, "Nombre completo"); name != "" {
		fields["personal.fullName"] = name
	}
	if college := prompt(reader, "College"); college != "" {
		fields["college.name"] = college
	}
	code, err := session.Store.FinalizeRegistration(ctx, user.UID, fields)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("Registro completo. Anwesha ID: %s\n", code)
}

func updateFlow(ctx context.Context, reader *bufio.Reader, session *service.Session) {
	user := session.Store.CurrentUser()
	if user == nil {
		fmt.Println("Primero registrate o inicia sesion.")
		return
	}
	field, value, ok := strings.Cut(prompt(reader, "campo=valor"), "=")
	if !ok || strings.TrimSpace(field) == "" {
		fmt.Println("Formato invalido.")
		return
	}
	var parsed any = value
	// valores JSON (true, 12, {"a":1}) se guardan tipados
	var decoded any
	if err := json.Unmarshal([]byte(value), &decoded); err == nil {
		parsed = decoded
	}
	updated, err := session.Store.UpdateUser(ctx, user.UID, domain.Fields{strings.TrimSpace(field): parsed})
	report(updated, err)
}

func verifyFlow(ctx context.Context, reader *bufio.Reader, session *service.Session, dir *identity.Directory) {
	user := session.Store.CurrentUser()
	if user == nil {
		fmt.Println("Primero registrate o inicia sesion.")
		return
	}
	if _, err := dir.RequestVerification(ctx, user.UID); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	code := prompt(reader, "Codigo")
	if _, err := dir.ConfirmVerification(ctx, user.UID, code); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	updated, err := session.Store.UpdateUser(ctx, user.UID, domain.Fields{"emailVerified": true})
	report(updated, err)
}

func printNotifications(items []notify.Notification) {
	for _, n := range items {
		fmt.Printf("(%s) %s\n", n.Level, n.Message)
	}
}

// cliSender muestra el codigo de verificacion en la terminal en lugar de enviarlo.
type cliSender struct{}

var _ email.Sender = cliSender{}

func (cliSender) SendVerificationCode(_ context.Context, toEmail string, code string, expiresAt time.Time) error {
	fmt.Printf("[email a %s] codigo %s (expira %s)\n", toEmail, code, expiresAt.Format(time.Kitchen))
	return nil
}
