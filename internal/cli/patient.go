package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"hospital-assistant/internal/db"
	"hospital-assistant/pkg"
)

var newPatient pkg.Patient

func init() {
	cmd := &cobra.Command{
		Use:   "add-patient",
		Short: "Register a patient",
		Example: `  hospital-assistant add-patient --name "Kavya Rao" --phone 9876500011 \
    --dob 1990-04-12 --gender Female --blood-group O+ --address "Indiranagar, Bengaluru"`,
		RunE: runAddPatient,
	}
	f := cmd.Flags()
	f.StringVar(&newPatient.Name, "name", "", "Full name (required)")
	f.StringVar(&newPatient.Phone, "phone", "", "10-digit phone number (required)")
	f.StringVar(&newPatient.DateOfBirth, "dob", "", "Date of birth, YYYY-MM-DD")
	f.StringVar(&newPatient.Gender, "gender", "", "Gender")
	f.StringVar(&newPatient.BloodGroup, "blood-group", "", "Blood group")
	f.StringVar(&newPatient.Address, "address", "", "Postal address")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("phone")
	RootCmd.AddCommand(cmd)
}

func runAddPatient(cmd *cobra.Command, args []string) error {
	conn, repo, err := openRepository(cmd.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	p, err := repo.AddPatient(cmd.Context(), newPatient)
	if errors.Is(err, db.ErrPhoneExists) {
		return fmt.Errorf("a patient with phone %s already exists", newPatient.Phone)
	}
	if err != nil {
		return fmt.Errorf("add patient: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), p)
}
