package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamscao/licenseserver/internal/db/repository"
	"github.com/adamscao/licenseserver/internal/license"
	"github.com/adamscao/licenseserver/internal/models"
)

var productCmd = &cobra.Command{
	Use:   "product",
	Short: "Manage products",
}

var productCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a licensable product",
	RunE:  createProduct,
}

var productListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all products",
	RunE:  listProducts,
}

var (
	productName        string
	productCode        string
	productDescription string
)

func init() {
	productCreateCmd.Flags().StringVarP(&productName, "name", "n", "", "Product name (required)")
	productCreateCmd.Flags().StringVar(&productCode, "code", "", "Product code written into licenses (required)")
	productCreateCmd.Flags().StringVarP(&productDescription, "description", "d", "", "Description")

	productCreateCmd.MarkFlagRequired("name")
	productCreateCmd.MarkFlagRequired("code")

	productCmd.AddCommand(productCreateCmd)
	productCmd.AddCommand(productListCmd)
}

func createProduct(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	product := &models.Product{
		Name:        productName,
		ProductCode: productCode,
		Description: productDescription,
	}
	if err := repository.NewProductRepository(database.DB).Create(cmd.Context(), product); err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	recordAction(cmd, models.ActionAdminCreateProduct, "", product.ProductCode)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Product created successfully!\n")
	fmt.Fprintf(out, "Product ID: %d\n", product.ID)
	fmt.Fprintf(out, "Code: %s (keys use %s)\n", product.ProductCode, license.ProductAbbreviation(product.ProductCode))
	return nil
}

func listProducts(cmd *cobra.Command, args []string) error {
	if err := initDB(); err != nil {
		return err
	}
	defer database.Close()

	products, err := repository.NewProductRepository(database.DB).List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list products: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(products) == 0 {
		fmt.Fprintln(out, "No products found")
		return nil
	}

	fmt.Fprintf(out, "%-5s %-25s %-25s %s\n", "ID", "Code", "Name", "Created")
	fmt.Fprintln(out, "--------------------------------------------------------------------------------")
	for _, p := range products {
		fmt.Fprintf(out, "%-5d %-25s %-25s %s\n", p.ID, p.ProductCode, p.Name, p.CreatedAt.Format(timeLayout))
	}
	return nil
}
